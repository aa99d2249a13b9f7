package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF fills buffer with key material derived from secret via
// HKDF-SHA256.
func HKDF(secret, salt, info, buffer []byte) (int, error) {
	h := hkdf.New(sha256.New, secret, salt, info)
	return io.ReadFull(h, buffer)
}

// Derive is a convenience wrapper that allocates the output buffer.
func Derive(secret, salt, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := HKDF(secret, salt, info, out); err != nil {
		return nil, err
	}
	return out, nil
}
