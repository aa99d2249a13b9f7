package wrap

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	_, err := io.ReadFull(rand.Reader, k[:])
	require.NoError(t, err)
	return k
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	shared := randomKey(t)
	key := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := Wrap(key, shared)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), string(key))

	got, err := Unwrap(wrapped, shared)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestUnwrapWrongKey(t *testing.T) {
	wrapped, err := Wrap([]byte("secret-material"), randomKey(t))
	require.NoError(t, err)

	_, err = Unwrap(wrapped, randomKey(t))
	assert.Error(t, err)
}

func TestUnwrapTruncated(t *testing.T) {
	_, err := Unwrap([]byte("short"), randomKey(t))
	assert.Error(t, err)
}
