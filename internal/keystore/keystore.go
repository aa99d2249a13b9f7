package keystore

import (
	"context"
	"fmt"
	"time"

	"secure_chat/internal/cryptographic/dh"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/model"
)

// Store persists and serves identity keys, signed pre-keys and one-time
// pre-keys. FetchKeyBundle is the only mutating read: it claims one
// unused one-time pre-key atomically, so a given key is handed to
// exactly one caller even under concurrent fetches.
type Store interface {
	// StoreKeys upserts the identity key and signed pre-key and inserts
	// the given one-time pre-keys (idempotent per key ID). Repeated
	// calls supersede the previous signed pre-key.
	StoreKeys(ctx context.Context, identity *model.IdentityKeyBundle, spk *model.SignedPreKey, otks []model.OneTimePreKey) error

	// FetchKeyBundle returns the public key bundle for userID. The
	// one-time pre-key is nil when the pool is exhausted; the bundle is
	// still usable with reduced forward secrecy.
	FetchKeyBundle(ctx context.Context, userID string) (*model.KeyBundle, error)

	// PrivateMaterial returns the full identity record including private
	// halves. Never exposed over the wire.
	PrivateMaterial(ctx context.Context, userID string) (*model.IdentityKeyBundle, error)

	// SignedPreKeyByID returns the signed pre-key record whether or not
	// it has been superseded: envelopes sealed before a rotation still
	// reference the old key.
	SignedPreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.SignedPreKey, error)

	// OneTimePreKeyByID returns a one-time pre-key record, used or not.
	// Claimed keys stay resident so their owner can open the envelopes
	// sealed against them.
	OneTimePreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.OneTimePreKey, error)

	// CountOneTimePreKeys reports how many unused one-time pre-keys
	// remain for userID.
	CountOneTimePreKeys(ctx context.Context, userID string) (int, error)
}

// Generate produces a complete key set for a user: X25519 identity key,
// Ed25519 signing key, a signed pre-key whose public half is signed with
// the signing key, and numOneTime one-time pre-keys.
func Generate(userID string, numOneTime int) (*model.IdentityKeyBundle, *model.SignedPreKey, []model.OneTimePreKey, error) {
	ikPriv, ikPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("identity key: %w", err)
	}

	signPub, signPriv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signing key: %w", err)
	}

	spkPriv, spkPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signed pre-key: %w", err)
	}

	now := time.Now()
	identity := &model.IdentityKeyBundle{
		UserID:       userID,
		PublicKey:    ikPub[:],
		PrivateKey:   ikPriv[:],
		SigningKey:   signPub,
		SigningPriv:  signPriv,
		RegisteredAt: now,
	}

	spk := &model.SignedPreKey{
		UserID:     userID,
		KeyID:      1,
		PublicKey:  spkPub[:],
		PrivateKey: spkPriv[:],
		Signature:  signature.ED25519Sign(signPriv, spkPub[:]),
		UploadedAt: now,
	}

	otks := make([]model.OneTimePreKey, 0, numOneTime)
	for i := 0; i < numOneTime; i++ {
		priv, pub, err := dh.NewX25519KeyPair()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("one-time pre-key %d: %w", i, err)
		}
		otks = append(otks, model.OneTimePreKey{
			UserID:     userID,
			KeyID:      uint32(i + 1),
			PublicKey:  pub[:],
			PrivateKey: priv[:],
			UploadedAt: now,
		})
	}

	return identity, spk, otks, nil
}
