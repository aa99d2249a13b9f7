package model

type (
	// SenderKeyBundle is the material the initiating side feeds into the
	// X3DH derivation: its own identity and ephemeral private keys plus
	// the peer's published public keys.
	SenderKeyBundle struct {
		IKPrivA []byte
		EKPrivA []byte

		IKPubB  []byte
		SPKPubB []byte
		OTKPubB []byte // nil when the one-time pool was exhausted
	}

	// ReceiverKeyBundle mirrors SenderKeyBundle for the responding side.
	ReceiverKeyBundle struct {
		IKPubA []byte
		EKPubA []byte

		IKPrivB  []byte
		SPKPrivB []byte
		OTKPrivB []byte
	}
)
