package ed25519

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/iykyk-syn/bboard/crypto"
)

const (
	KeyType = "ed25519"
)

// ErrInvalidKey is returned for keys of the wrong length or encoding.
var ErrInvalidKey = errors.New("invalid key length")

type PublicKey []byte

func (pubKey PublicKey) VerifySignature(msg []byte, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)
}

func (pubKey PublicKey) Equals(other []byte) bool {
	if len(other) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.PublicKey(pubKey).Equal(ed25519.PublicKey(other))
}

func (pubKey PublicKey) Bytes() []byte {
	return pubKey
}

func (pubKey PublicKey) Type() string {
	return KeyType
}

// String returns the hex form of the key, which also names the owner's personal board.
func (pubKey PublicKey) String() string {
	return hex.EncodeToString(pubKey)
}

type PrivateKey []byte

// Sign produces a pure ed25519 signature over msg.
func (privKey PrivateKey) Sign(msg []byte) ([]byte, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	return ed25519.Sign(ed25519.PrivateKey(privKey), msg), nil
}

func (privKey PrivateKey) PubKey() crypto.PubKey {
	return privKey.Public()
}

// Public returns the concrete public half of the key.
func (privKey PrivateKey) Public() PublicKey {
	public := ed25519.PrivateKey(privKey).Public().(ed25519.PublicKey)
	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, public)
	return key
}

func (privKey PrivateKey) Equals(other []byte) bool {
	if len(other) != ed25519.PrivateKeySize {
		return false
	}
	return ed25519.PrivateKey(privKey).Equal(ed25519.PrivateKey(other))
}

func (privKey PrivateKey) Type() string {
	return KeyType
}

// Seed returns the 32 byte seed the key is derived from.
func (privKey PrivateKey) Seed() []byte {
	return ed25519.PrivateKey(privKey).Seed()
}

func GenKeys() (PublicKey, PrivateKey, error) {
	pubK, privK, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	public := make(PublicKey, ed25519.PublicKeySize)
	copy(public, pubK)
	private := make(PrivateKey, ed25519.PrivateKeySize)
	copy(private, privK)

	return public, private, nil
}

func BytesToPubKey(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidKey
	}

	key := make(PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}

// BytesToPrivKey accepts either a 32 byte seed or a full 64 byte private key.
func BytesToPrivKey(b []byte) (PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return PrivateKey(ed25519.NewKeyFromSeed(b)), nil
	case ed25519.PrivateKeySize:
		key := make(PrivateKey, ed25519.PrivateKeySize)
		copy(key, b)
		return key, nil
	default:
		return nil, ErrInvalidKey
	}
}

// HexToPubKey decodes a hex encoded public key.
func HexToPubKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return BytesToPubKey(b)
}
