// Package memnet connects replicas and clients inside a single process. Every message goes
// through its binary form, as it would over a real network.
package memnet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iykyk-syn/bboard/link"
	"github.com/iykyk-syn/bboard/quorum"
	"github.com/iykyk-syn/bboard/wire"
)

// ErrUnreachable is returned for calls to or from a replica that is down or not registered.
var ErrUnreachable = errors.New("replica unreachable")

// client is the sending end of calls of clients, it is never down.
const client = -1

// Network routes calls between handlers registered by replica index.
type Network struct {
	mu       sync.RWMutex
	handlers map[int]wire.Handler
	down     map[int]bool
}

// New creates an empty Network.
func New() *Network {
	return &Network{
		handlers: make(map[int]wire.Handler),
		down:     make(map[int]bool),
	}
}

// Register attaches the handler of the replica with the given index.
func (n *Network) Register(index int, h wire.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[index] = h
}

// SetDown cuts the replica off the Network, calls to and from it fail until it is back up.
func (n *Network) SetDown(index int, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[index] = down
}

// Conn returns a connection of a client to the replica with the given index.
func (n *Network) Conn(index int) *Conn {
	return &Conn{net: n, from: client, to: index}
}

// Broadcaster returns the vote broadcaster of the replica with the given index. Votes are
// resent to every other replica of the set until it acknowledges them.
func (n *Network) Broadcaster(self int, set *quorum.Set, opts ...link.Option) *link.Multicast {
	opts = append([]link.Option{link.WithMaxAttempts(0)}, opts...)

	links := make([]*link.Link, 0, set.Len()-1)
	for _, r := range set.All() {
		if r.Index == self {
			continue
		}
		links = append(links, link.New(r.Index, r.PubKey, &Conn{net: n, from: self, to: r.Index}, opts...))
	}
	return link.NewMulticast(links...)
}

func (n *Network) handler(from, to int) (wire.Handler, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[from] {
		return nil, fmt.Errorf("%w: %d", ErrUnreachable, from)
	}
	h, ok := n.handlers[to]
	if !ok || n.down[to] {
		return nil, fmt.Errorf("%w: %d", ErrUnreachable, to)
	}
	return h, nil
}

func (n *Network) call(ctx context.Context, from, to int, env wire.Envelope) (*wire.Response, error) {
	h, err := n.handler(from, to)
	if err != nil {
		return nil, err
	}

	in, err := roundtrip(env)
	if err != nil {
		return nil, err
	}
	resp := h.Handle(ctx, in)
	if resp == nil {
		return nil, fmt.Errorf("no response from %d", to)
	}

	out, err := resp.Envelope()
	if err != nil {
		return nil, err
	}
	if out, err = roundtrip(out); err != nil {
		return nil, err
	}
	return wire.DecodeResponse(out)
}

func roundtrip(env wire.Envelope) (wire.Envelope, error) {
	bin, err := env.MarshalBinary()
	if err != nil {
		return wire.Envelope{}, err
	}
	var out wire.Envelope
	return out, out.UnmarshalBinary(bin)
}

// Conn is a connection to a single replica.
type Conn struct {
	net  *Network
	from int
	to   int
}

// Call sends the request and returns the reply of the replica as is.
func (c *Conn) Call(ctx context.Context, env wire.Envelope) (*wire.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.net.call(ctx, c.from, c.to, env)
}
