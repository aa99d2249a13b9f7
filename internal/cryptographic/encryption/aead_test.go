package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAEADRoundTrip(t *testing.T) {
	key, err := NewMessageKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	iv, ct, tag, err := AEADEncrypt(key, []byte("attack at dawn"), []byte("sender-1"))
	require.NoError(t, err)
	assert.Len(t, iv, ivSize)
	assert.Len(t, tag, tagSize)

	plain, err := AEADDecrypt(key, iv, ct, tag, []byte("sender-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("attack at dawn"), plain)
}

func TestAEADRejectsTamperedCiphertext(t *testing.T) {
	key, err := NewMessageKey()
	require.NoError(t, err)

	iv, ct, tag, err := AEADEncrypt(key, []byte("payload"), nil)
	require.NoError(t, err)

	ct[0] ^= 0xff
	_, err = AEADDecrypt(key, iv, ct, tag, nil)
	assert.Error(t, err)
}

func TestAEADRejectsWrongAAD(t *testing.T) {
	key, err := NewMessageKey()
	require.NoError(t, err)

	iv, ct, tag, err := AEADEncrypt(key, []byte("payload"), []byte("alice"))
	require.NoError(t, err)

	_, err = AEADDecrypt(key, iv, ct, tag, []byte("mallory"))
	assert.Error(t, err)
}

func TestAEADRejectsBadLengths(t *testing.T) {
	key, err := NewMessageKey()
	require.NoError(t, err)

	iv, ct, tag, err := AEADEncrypt(key, []byte("payload"), nil)
	require.NoError(t, err)

	_, err = AEADDecrypt(key, iv[:4], ct, tag, nil)
	assert.Error(t, err)
	_, err = AEADDecrypt(key, iv, ct, tag[:8], nil)
	assert.Error(t, err)
}
