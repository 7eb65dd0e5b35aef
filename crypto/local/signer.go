package local

import (
	"errors"

	"github.com/iykyk-syn/bboard/crypto"
)

// Signer produces MACs with a locally held private key.
type Signer struct {
	privKey crypto.PrivKey
	pubKey  crypto.PubKey
}

func NewSigner(privKey crypto.PrivKey) (*Signer, error) {
	if privKey == nil {
		return nil, errors.New("nil private key")
	}
	pubKey := privKey.PubKey()
	if pubKey == nil || len(pubKey.Bytes()) == 0 {
		return nil, errors.New("invalid pubKey received")
	}

	return &Signer{
		privKey: privKey,
		pubKey:  pubKey,
	}, nil
}

func (s *Signer) ID() []byte {
	return s.pubKey.Bytes()
}

// PubKey returns the verifying half of the Signer.
func (s *Signer) PubKey() crypto.PubKey {
	return s.pubKey
}

func (s *Signer) Sign(msg []byte) (crypto.Signature, error) {
	mac, err := crypto.MAC(msg, s.privKey)
	if err != nil {
		return crypto.Signature{}, err
	}

	return crypto.Signature{
		Signer: s.ID(),
		Body:   mac,
	}, nil
}
