package link

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/bboard/wire"
)

// Multicast sends votes of a replica to every other replica over Links.
// A vote is resent to each peer until the peer acknowledges it authentically, so a peer that is
// unreachable for a while still gets it once it is back. Only ctx bounds the resending.
type Multicast struct {
	links []*Link
}

// NewMulticast creates a Multicast over Links to every other replica.
func NewMulticast(links ...*Link) *Multicast {
	return &Multicast{links: links}
}

// Broadcast sends the vote to all the peers concurrently and waits until each of them either
// accepted or authentically refused it. Refusals are reported, the rest are reached regardless.
func (m *Multicast) Broadcast(ctx context.Context, msg *wire.PeerMessage) error {
	env, err := msg.Envelope()
	if err != nil {
		return err
	}
	fingerprint := wire.Fingerprint(msg.Phase, msg)

	var eg errgroup.Group
	for _, l := range m.links {
		eg.Go(func() error {
			resp, err := l.Call(ctx, env, fingerprint)
			if err != nil {
				return fmt.Errorf("sending to %d: %w", l.Index(), err)
			}
			if err := resp.Err(); err != nil {
				return fmt.Errorf("replica %d refused the vote: %w", l.Index(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
