// Package rebro implements Byzantine Reliable Broadcast of client writes among a static set of
// N=3f+1 replicas.
//
// Every replica receiving a client write echoes it once. A replica that counts 2f+1 echoes, or
// f+1 readies, sends ready once. A replica that counts 2f+1 readies delivers the write exactly
// once. Correct replicas thereby agree on which writes are delivered, even if f of them behave
// arbitrarily, and no write is delivered unless some correct replica echoed it.
//
// Broadcast only agrees on delivered bytes. Whether a delivered write is semantically acceptable
// is decided by the Deliverer at delivery time.
package rebro

import (
	"context"
	"errors"

	"github.com/iykyk-syn/bboard/wire"
)

// Broadcaster sends an echo or ready vote to every other replica.
// It enables optionality for the networking stack (point to point or gossip).
type Broadcaster interface {
	// Broadcast sends the message to all the replicas except the local one.
	// Every correct replica must get it eventually: an implementation keeps resending to
	// unreachable replicas until ctx is done, or leaves repairs to a gossip mesh.
	Broadcast(context.Context, *wire.PeerMessage) error
}

// Verifier performs application specific stateless and cheap stateful validation of a client
// write before the local replica echoes it. Sequencing is not its concern.
type Verifier interface {
	Verify(context.Context, wire.Write) error
}

// ErrPremature is returned by a Deliverer for a write depending on writes the local replica has
// not delivered yet. Some correct replica validated the write against them before echoing it,
// so they are delivered eventually.
var ErrPremature = errors.New("depends on writes not delivered yet")

// Deliverer applies a delivered write. It is called once per write id per replica, and again
// after later deliveries for as long as it reports ErrPremature.
// Any other returned error is the outcome reported to the waiting client, the write stays
// delivered.
type Deliverer interface {
	Deliver(context.Context, wire.Write) error
}

// PeerHandler accepts votes from other replicas.
type PeerHandler interface {
	HandlePeer(context.Context, *wire.PeerMessage) error
}
