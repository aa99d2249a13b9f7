package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	KeySize = 32 // AES-256
	ivSize  = 12 // standard GCM nonce
	tagSize = 16
)

// NewMessageKey generates a fresh random symmetric key for one message.
func NewMessageKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("rand.Read key: %w", err)
	}
	return key, nil
}

// AEADEncrypt encrypts plaintext with AES-GCM and returns the iv,
// ciphertext and authentication tag as separate values. The tag is kept
// apart from the ciphertext because the decrypt-side session record
// stores iv and tag independently of the shared ciphertext.
func AEADEncrypt(key, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	iv = make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, fmt.Errorf("rand.Read nonce: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	ciphertext = sealed[:len(sealed)-tagSize]
	tag = sealed[len(sealed)-tagSize:]
	return iv, ciphertext, tag, nil
}

// AEADDecrypt reverses AEADEncrypt. A tag mismatch returns an error and
// no plaintext.
func AEADDecrypt(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", ivSize, len(iv))
	}
	if len(tag) != tagSize {
		return nil, fmt.Errorf("tag must be %d bytes, got %d", tagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("aead.Open: %w", err)
	}
	return plain, nil
}
