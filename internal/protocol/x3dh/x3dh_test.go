package x3dh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_chat/internal/cryptographic/dh"
	"secure_chat/internal/model"
)

type party struct {
	ikPriv, ikPub   [32]byte
	spkPriv, spkPub [32]byte
	otkPriv, otkPub [32]byte
	ekPriv, ekPub   [32]byte
}

func newParty(t *testing.T) party {
	t.Helper()
	var p party
	var err error
	p.ikPriv, p.ikPub, err = dh.NewX25519KeyPair()
	require.NoError(t, err)
	p.spkPriv, p.spkPub, err = dh.NewX25519KeyPair()
	require.NoError(t, err)
	p.otkPriv, p.otkPub, err = dh.NewX25519KeyPair()
	require.NoError(t, err)
	p.ekPriv, p.ekPub, err = dh.NewX25519KeyPair()
	require.NoError(t, err)
	return p
}

func TestSenderReceiverDeriveSameKey(t *testing.T) {
	alice := newParty(t)
	bob := newParty(t)

	sender := &X3DHSender{}
	skA, err := sender.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: alice.ikPriv[:],
		EKPrivA: alice.ekPriv[:],
		IKPubB:  bob.ikPub[:],
		SPKPubB: bob.spkPub[:],
		OTKPubB: bob.otkPub[:],
	})
	require.NoError(t, err)

	receiver := &X3DHReceiver{}
	skB, err := receiver.GenerateShareKey(&model.ReceiverKeyBundle{
		IKPubA:   alice.ikPub[:],
		EKPubA:   alice.ekPub[:],
		IKPrivB:  bob.ikPriv[:],
		SPKPrivB: bob.spkPriv[:],
		OTKPrivB: bob.otkPriv[:],
	})
	require.NoError(t, err)

	assert.Equal(t, skA, skB)
	assert.Len(t, skA, 32)
}

func TestDerivationWithoutOneTimePreKey(t *testing.T) {
	alice := newParty(t)
	bob := newParty(t)

	sender := &X3DHSender{}
	skA, err := sender.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: alice.ikPriv[:],
		EKPrivA: alice.ekPriv[:],
		IKPubB:  bob.ikPub[:],
		SPKPubB: bob.spkPub[:],
		OTKPubB: nil,
	})
	require.NoError(t, err)

	receiver := &X3DHReceiver{}
	skB, err := receiver.GenerateShareKey(&model.ReceiverKeyBundle{
		IKPubA:   alice.ikPub[:],
		EKPubA:   alice.ekPub[:],
		IKPrivB:  bob.ikPriv[:],
		SPKPrivB: bob.spkPriv[:],
		OTKPrivB: nil,
	})
	require.NoError(t, err)

	assert.Equal(t, skA, skB)
}

func TestOneTimePreKeyChangesDerivedKey(t *testing.T) {
	alice := newParty(t)
	bob := newParty(t)

	sender := &X3DHSender{}
	withOTK, err := sender.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: alice.ikPriv[:],
		EKPrivA: alice.ekPriv[:],
		IKPubB:  bob.ikPub[:],
		SPKPubB: bob.spkPub[:],
		OTKPubB: bob.otkPub[:],
	})
	require.NoError(t, err)

	withoutOTK, err := sender.GenerateShareKey(&model.SenderKeyBundle{
		IKPrivA: alice.ikPriv[:],
		EKPrivA: alice.ekPriv[:],
		IKPubB:  bob.ikPub[:],
		SPKPubB: bob.spkPub[:],
		OTKPubB: nil,
	})
	require.NoError(t, err)

	assert.NotEqual(t, withOTK, withoutOTK)
}
