package p2p

import (
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/quorum"
)

// Identity turns the key of a replica into its libp2p identity.
func Identity(key ed25519.PrivateKey) (libp2pcrypto.PrivKey, error) {
	return libp2pcrypto.UnmarshalEd25519PrivateKey(key)
}

// PeerID returns the peer id of the replica with the given key.
func PeerID(key crypto.PubKey) (peer.ID, error) {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(key.Bytes())
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pub)
}

// Peers resolves every replica of the set to its peer id.
func Peers(set *quorum.Set) (map[int]peer.ID, error) {
	peers := make(map[int]peer.ID, set.Len())
	for _, r := range set.All() {
		id, err := PeerID(r.PubKey)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", r.Index, err)
		}
		peers[r.Index] = id
	}
	return peers, nil
}
