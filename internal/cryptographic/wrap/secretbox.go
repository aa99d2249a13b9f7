package wrap

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Symmetric wrapping of per-message keys. Each recipient gets the same
// message key sealed under the shared key derived for them, so one
// wrapped copy can be dropped without touching the shared ciphertext.

// Wrap seals key under the 32-byte shared key. Output is nonce || box.
func Wrap(key []byte, shared [32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], key, &nonce, &shared), nil
}

// Unwrap opens a wrapped key produced by Wrap.
func Unwrap(wrapped []byte, shared [32]byte) ([]byte, error) {
	if len(wrapped) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("wrapped key too short: %d bytes", len(wrapped))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], wrapped[:nonceSize])

	key, ok := secretbox.Open(nil, wrapped[nonceSize:], &nonce, &shared)
	if !ok {
		return nil, fmt.Errorf("secretbox open failed")
	}
	return key, nil
}
