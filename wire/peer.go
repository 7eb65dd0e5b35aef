package wire

import (
	"fmt"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto"
)

// PeerMessage is an echo or ready vote of Sender for Write.
type PeerMessage struct {
	Phase  Method `json:"phase"`
	Write  Write  `json:"write"`
	Sender int    `json:"sender"`
	MAC    []byte `json:"mac"`
}

// NewPeerMessage creates a PeerMessage authenticated by signer.
func NewPeerMessage(phase Method, w Write, sender int, signer crypto.Signer) (*PeerMessage, error) {
	if !phase.IsPeer() {
		return nil, fmt.Errorf("%w: %s is not a peer phase", bboard.ErrInvalidRequest, phase)
	}

	msg := &PeerMessage{Phase: phase, Write: w, Sender: sender}
	sig, err := signer.Sign(msg.Canonical())
	if err != nil {
		return nil, err
	}
	msg.MAC = sig.Body
	return msg, nil
}

// Canonical binds the vote to the phase, the sender and the id of the write.
func (m *PeerMessage) Canonical() []byte {
	return encoder(nil).
		str(string(m.Phase)).
		uint(uint64(m.Sender)).
		bytes(m.Write.Fingerprint())
}

func (m *PeerMessage) Auth() []byte {
	return m.MAC
}

// Envelope wraps the PeerMessage for sending.
func (m *PeerMessage) Envelope() (Envelope, error) {
	return NewEnvelope(m.Phase, m)
}
