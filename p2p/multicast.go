package p2p

import (
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/bboard/link"
	"github.com/iykyk-syn/bboard/quorum"
)

// NewMulticast creates the vote broadcaster of the replica with the given index: votes travel to
// every other replica over direct streams and are resent until the replica acknowledges them.
// It is the point-to-point alternative of gossiping. Peers maps indexes of replicas to their
// peer ids.
func NewMulticast(host host.Host, self int, set *quorum.Set, peers map[int]peer.ID, opts ...link.Option) *link.Multicast {
	opts = append([]link.Option{link.WithMaxAttempts(0)}, opts...)

	links := make([]*link.Link, 0, set.Len()-1)
	for _, r := range set.All() {
		if r.Index == self {
			continue
		}
		links = append(links, link.New(r.Index, r.PubKey, NewConn(host, peers[r.Index]), opts...))
	}
	return link.NewMulticast(links...)
}
