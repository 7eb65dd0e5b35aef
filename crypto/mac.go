package crypto

import (
	"crypto/sha256"
)

// Digest is the fixed digest every MAC is computed over.
func Digest(content []byte) []byte {
	h := sha256.Sum256(content)
	return h[:]
}

// MAC digests content and signs the digest with the given key.
func MAC(content []byte, key PrivKey) ([]byte, error) {
	return key.Sign(Digest(content))
}

// VerifyMAC checks mac over content against the given key.
// Malformed input of any kind reports false.
func VerifyMAC(content, mac []byte, key PubKey) bool {
	if key == nil || len(mac) == 0 {
		return false
	}
	return key.VerifySignature(Digest(content), mac)
}
