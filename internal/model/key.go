package model

import "time"

type (
	// IdentityKeyBundle is a user's long-term key material. The private
	// halves never leave the key store; fetch paths expose public halves
	// only.
	IdentityKeyBundle struct {
		UserID       string    `json:"userId" bson:"user_id"`
		PublicKey    []byte    `json:"publicKey" bson:"public_key"`   // 32 bytes Curve25519
		PrivateKey   []byte    `json:"-" bson:"private_key"`          // 32 bytes, server-held
		SigningKey   []byte    `json:"signingKey" bson:"signing_key"` // Ed25519 public
		SigningPriv  []byte    `json:"-" bson:"signing_priv"`
		RegisteredAt time.Time `json:"registeredAt" bson:"registered_at"`
	}

	// SignedPreKey is the medium-term key whose public half is signed by
	// the identity signing key. One active record per user; rotation
	// supersedes, it does not delete.
	SignedPreKey struct {
		UserID     string    `json:"userId" bson:"user_id"`
		KeyID      uint32    `json:"keyId" bson:"key_id"`
		PublicKey  []byte    `json:"publicKey" bson:"public_key"`
		PrivateKey []byte    `json:"-" bson:"private_key"`
		Signature  []byte    `json:"signature" bson:"signature"` // 64 bytes Ed25519
		Superseded bool      `json:"-" bson:"superseded"`
		UploadedAt time.Time `json:"uploadedAt" bson:"uploaded_at"`
	}

	// OneTimePreKey is consumed at most once when another party fetches
	// the owner's key bundle.
	OneTimePreKey struct {
		UserID     string    `json:"userId" bson:"user_id"`
		KeyID      uint32    `json:"keyId" bson:"key_id"`
		PublicKey  []byte    `json:"publicKey" bson:"public_key"`
		PrivateKey []byte    `json:"-" bson:"private_key"`
		Used       bool      `json:"used" bson:"used"`
		UploadedAt time.Time `json:"uploadedAt" bson:"uploaded_at"`
	}

	// KeyBundle is the fetch result handed to a session initiator. The
	// one-time key is nil when the pool is exhausted.
	KeyBundle struct {
		UserID        string         `json:"userId"`
		IdentityKey   []byte         `json:"identityKey"`
		SigningKey    []byte         `json:"signingKey"`
		SignedPreKey  *SignedPreKey  `json:"signedPreKey"`
		OneTimePreKey *OneTimePreKey `json:"oneTimePreKey,omitempty"`
	}
)
