package model

import "time"

type (
	// Envelope is the encrypted form of one message: a single AES-GCM
	// ciphertext plus the message key wrapped separately for every
	// recipient that had a published key bundle. The wrap key for each
	// recipient is derived via X3DH from the sender's identity and
	// ephemeral keys against the recipient's fetched bundle; SenderKey
	// and EphemeralKey carry the sender's public halves so recipients
	// can re-derive it.
	Envelope struct {
		Ciphertext   []byte                `json:"ciphertext" bson:"ciphertext"`
		IV           []byte                `json:"iv" bson:"iv"`
		AuthTag      []byte                `json:"authTag" bson:"auth_tag"`
		SenderKey    []byte                `json:"senderKey" bson:"sender_key"`       // sender identity public key
		EphemeralKey []byte                `json:"ephemeralKey" bson:"ephemeral_key"` // sender one-shot X25519 public key
		WrappedKeys  map[string]WrappedKey `json:"wrappedKeys" bson:"wrapped_keys"`   // recipient userID -> wrapped copy
	}

	// WrappedKey is one recipient's copy of the message key, sealed
	// under the X3DH-derived shared key. The key IDs name which of the
	// recipient's pre-keys entered the derivation.
	WrappedKey struct {
		SignedKeyID  uint32 `json:"signedKeyId" bson:"signed_key_id"`
		OneTimeKeyID uint32 `json:"oneTimeKeyId,omitempty" bson:"one_time_key_id,omitempty"` // 0 when the pool was exhausted
		Sealed       []byte `json:"sealed" bson:"sealed"`
	}

	// EncryptionSession records the key-independent decrypt parameters
	// per (message, sender, recipient). Retained for the audit/replay
	// window after the message itself is read.
	EncryptionSession struct {
		MessageID   string    `json:"messageId" bson:"message_id"`
		SenderID    string    `json:"senderId" bson:"sender_id"`
		RecipientID string    `json:"recipientId" bson:"recipient_id"`
		IV          []byte    `json:"iv" bson:"iv"`
		AuthTag     []byte    `json:"authTag" bson:"auth_tag"`
		CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	}
)
