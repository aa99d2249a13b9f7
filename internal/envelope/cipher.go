package envelope

import (
	"go.uber.org/zap"

	"secure_chat/internal/cryptographic/dh"
	"secure_chat/internal/cryptographic/encryption"
	"secure_chat/internal/cryptographic/signature"
	"secure_chat/internal/cryptographic/wrap"
	"secure_chat/internal/errs"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/x3dh"
	"secure_chat/internal/utils/log"
)

// Cipher implements fan-out envelope encryption: the plaintext is
// encrypted once with a fresh symmetric key, and that key is sealed
// separately for every recipient under a wrap key derived via X3DH from
// the sender's identity and a one-shot ephemeral key against the
// recipient's published bundle. One ciphertext, N wrapped keys.
type Cipher struct {
	sender   *x3dh.X3DHSender
	receiver *x3dh.X3DHReceiver
}

func NewCipher() *Cipher {
	return &Cipher{
		sender:   &x3dh.X3DHSender{},
		receiver: &x3dh.X3DHReceiver{},
	}
}

// RecipientMaterial is the private key set one recipient needs to open
// their wrapped copy: the identity private half plus the signed and
// one-time pre-key privates referenced by the envelope.
type RecipientMaterial struct {
	IdentityPriv     []byte
	SignedPreKeyPriv []byte
	OneTimePriv      []byte // nil when no one-time key entered the derivation
}

// Encrypt builds the envelope for plaintext. bundles maps recipient
// userID to that user's fetched key bundle; recipients without a usable
// bundle, including those whose signed pre-key fails signature
// verification, are skipped (logged, not fatal) and simply get no
// wrapped key. An envelope with zero wrappable recipients is an error.
func (c *Cipher) Encrypt(plaintext []byte, sender *model.IdentityKeyBundle, recipientIDs []string, bundles map[string]*model.KeyBundle) (*model.Envelope, error) {
	if len(plaintext) == 0 {
		return nil, errs.Validation("plaintext cannot be empty")
	}
	if sender == nil || len(sender.PrivateKey) != 32 || len(sender.PublicKey) != 32 {
		return nil, errs.Validation("sender has no usable identity key")
	}

	key, err := encryption.NewMessageKey()
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, "generate message key", err)
	}

	iv, ciphertext, tag, err := encryption.AEADEncrypt(key, plaintext, []byte(sender.UserID))
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, "encrypt payload", err)
	}

	ephPriv, ephPub, err := dh.NewX25519KeyPair()
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, "generate ephemeral key", err)
	}

	wrapped := make(map[string]model.WrappedKey, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		bundle := bundles[recipientID]
		if !usableBundle(bundle) {
			log.Warn("skipping recipient without usable key bundle",
				zap.String("senderID", sender.UserID),
				zap.String("recipientID", recipientID),
			)
			continue
		}

		wk, err := c.wrapFor(key, sender, ephPriv, bundle)
		if err != nil {
			log.Error("wrap message key failed",
				zap.String("recipientID", recipientID),
				zap.Error(err),
			)
			continue
		}
		wrapped[recipientID] = wk
	}

	if len(wrapped) == 0 {
		return nil, errs.Validation("no recipients with published key bundles")
	}

	return &model.Envelope{
		Ciphertext:   ciphertext,
		IV:           iv,
		AuthTag:      tag,
		SenderKey:    sender.PublicKey,
		EphemeralKey: ephPub[:],
		WrappedKeys:  wrapped,
	}, nil
}

// usableBundle checks the bundle carries the keys the derivation needs
// and that the signed pre-key really was signed by the owner.
func usableBundle(bundle *model.KeyBundle) bool {
	if bundle == nil || len(bundle.IdentityKey) != 32 {
		return false
	}
	spk := bundle.SignedPreKey
	if spk == nil || len(spk.PublicKey) != 32 {
		return false
	}
	return signature.ED25519Verify(bundle.SigningKey, spk.PublicKey, spk.Signature)
}

func (c *Cipher) wrapFor(key []byte, sender *model.IdentityKeyBundle, ephPriv [32]byte, bundle *model.KeyBundle) (model.WrappedKey, error) {
	skb := &model.SenderKeyBundle{
		IKPrivA: sender.PrivateKey,
		EKPrivA: ephPriv[:],
		IKPubB:  bundle.IdentityKey,
		SPKPubB: bundle.SignedPreKey.PublicKey,
	}

	var otkID uint32
	if otk := bundle.OneTimePreKey; otk != nil && len(otk.PublicKey) == 32 {
		skb.OTKPubB = otk.PublicKey
		otkID = otk.KeyID
	}

	shared, err := c.sender.GenerateShareKey(skb)
	if err != nil {
		return model.WrappedKey{}, err
	}

	sealed, err := wrap.Wrap(key, [32]byte(shared))
	if err != nil {
		return model.WrappedKey{}, err
	}

	return model.WrappedKey{
		SignedKeyID:  bundle.SignedPreKey.KeyID,
		OneTimeKeyID: otkID,
		Sealed:       sealed,
	}, nil
}

// Decrypt re-derives the recipient's wrap key, unseals their copy of
// the message key and opens the ciphertext. Fails closed: a missing
// wrapped key, derivation mismatch or tag mismatch returns
// DecryptionFailed and no partial plaintext.
func (c *Cipher) Decrypt(env *model.Envelope, senderID, recipientID string, material *RecipientMaterial) ([]byte, error) {
	wk, ok := env.WrappedKeys[recipientID]
	if !ok {
		return nil, errs.DecryptionFailed("no wrapped key for recipient", nil)
	}
	if material == nil ||
		len(material.IdentityPriv) != 32 ||
		len(material.SignedPreKeyPriv) != 32 ||
		len(env.SenderKey) != 32 ||
		len(env.EphemeralKey) != 32 {
		return nil, errs.DecryptionFailed("incomplete key material", nil)
	}
	if wk.OneTimeKeyID != 0 && len(material.OneTimePriv) != 32 {
		return nil, errs.DecryptionFailed("missing one-time pre-key material", nil)
	}

	rkb := &model.ReceiverKeyBundle{
		IKPubA:   env.SenderKey,
		EKPubA:   env.EphemeralKey,
		IKPrivB:  material.IdentityPriv,
		SPKPrivB: material.SignedPreKeyPriv,
	}
	if wk.OneTimeKeyID != 0 {
		rkb.OTKPrivB = material.OneTimePriv
	}

	shared, err := c.receiver.GenerateShareKey(rkb)
	if err != nil {
		return nil, errs.DecryptionFailed("derive wrap key", err)
	}

	key, err := wrap.Unwrap(wk.Sealed, [32]byte(shared))
	if err != nil {
		return nil, errs.DecryptionFailed("unwrap message key", err)
	}

	plain, err := encryption.AEADDecrypt(key, env.IV, env.Ciphertext, env.AuthTag, []byte(senderID))
	if err != nil {
		return nil, errs.DecryptionFailed("authenticated decrypt", err)
	}
	return plain, nil
}

// Sessions builds the per-recipient EncryptionSession records persisted
// alongside the message for the audit/replay window.
func Sessions(messageID, senderID string, env *model.Envelope) []model.EncryptionSession {
	sessions := make([]model.EncryptionSession, 0, len(env.WrappedKeys))
	for recipientID := range env.WrappedKeys {
		sessions = append(sessions, model.EncryptionSession{
			MessageID:   messageID,
			SenderID:    senderID,
			RecipientID: recipientID,
			IV:          env.IV,
			AuthTag:     env.AuthTag,
		})
	}
	return sessions
}
