package x3dh

import (
	"secure_chat/internal/cryptographic/dh"
	"secure_chat/internal/cryptographic/kdf"
	"secure_chat/internal/model"
)

type (
	X3DHBase struct {
	}

	X3DHSender struct {
		*X3DHBase
	}

	X3DHReceiver struct {
		*X3DHBase
	}
)

// GenerateShareKey concatenates the DH outputs and derives the 32-byte
// shared key. dh4 is nil when no one-time pre-key was available.
func (s *X3DHBase) GenerateShareKey(dh1, dh2, dh3, dh4 []byte) ([]byte, error) {
	var concat []byte = make([]byte, 0)
	concat = append(concat, dh1...)
	concat = append(concat, dh2...)
	concat = append(concat, dh3...)
	if dh4 != nil {
		concat = append(concat, dh4...)
	}

	var salt []byte = concat
	var info []byte = []byte("SharedKey")

	return kdf.Derive(nil, salt, info, 32)
}

func (s *X3DHSender) GenerateShareKey(skb *model.SenderKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret([32]byte(skb.IKPrivA), [32]byte(skb.SPKPubB))
	if err != nil {
		return nil, err
	}

	dh2, err := dh.X25519SharedSecret([32]byte(skb.EKPrivA), [32]byte(skb.IKPubB))
	if err != nil {
		return nil, err
	}

	dh3, err := dh.X25519SharedSecret([32]byte(skb.EKPrivA), [32]byte(skb.SPKPubB))
	if err != nil {
		return nil, err
	}

	var dh4 []byte = nil
	if skb.OTKPubB != nil {
		dh4, err = dh.X25519SharedSecret([32]byte(skb.EKPrivA), [32]byte(skb.OTKPubB))
		if err != nil {
			return nil, err
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}

func (s *X3DHReceiver) GenerateShareKey(rkb *model.ReceiverKeyBundle) ([]byte, error) {
	dh1, err := dh.X25519SharedSecret([32]byte(rkb.SPKPrivB), [32]byte(rkb.IKPubA))
	if err != nil {
		return nil, err
	}

	dh2, err := dh.X25519SharedSecret([32]byte(rkb.IKPrivB), [32]byte(rkb.EKPubA))
	if err != nil {
		return nil, err
	}

	dh3, err := dh.X25519SharedSecret([32]byte(rkb.SPKPrivB), [32]byte(rkb.EKPubA))
	if err != nil {
		return nil, err
	}

	var dh4 []byte = nil
	if rkb.OTKPrivB != nil {
		dh4, err = dh.X25519SharedSecret([32]byte(rkb.OTKPrivB), [32]byte(rkb.EKPubA))
		if err != nil {
			return nil, err
		}
	}

	return s.X3DHBase.GenerateShareKey(dh1, dh2, dh3, dh4)
}
