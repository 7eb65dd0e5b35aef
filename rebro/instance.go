package rebro

import (
	"sync"

	"github.com/iykyk-syn/bboard/quorum"
	"github.com/iykyk-syn/bboard/wire"
)

// instance is the broadcast state of a single write id.
// It is guarded by its own lock, so different ids never contend.
type instance struct {
	mu sync.Mutex

	write wire.Write

	echoSent  bool
	readySent bool
	// delivering is set by the single path that reached the delivery threshold
	delivering bool
	delivered  bool

	echoes  *quorum.Tally
	readies *quorum.Tally

	outcome error
	doneCh  chan struct{}
}

func newInstance(w wire.Write, set *quorum.Set) *instance {
	return &instance{
		write:   w,
		echoes:  quorum.NewTally(set),
		readies: quorum.NewTally(set),
		doneCh:  make(chan struct{}),
	}
}

// action is what a state transition asks the engine to do once the instance lock is released.
type action struct {
	sendEcho  bool
	sendReady bool
	deliver   bool
}

// submit marks the instance echoed by the local replica.
func (inst *instance) submit() (act action, delivered bool, outcome error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.delivered {
		return act, true, inst.outcome
	}
	if !inst.echoSent {
		inst.echoSent = true
		act.sendEcho = true
	}
	return act, false, nil
}

// echo counts an echo of the sender.
func (inst *instance) echo(sender int, set *quorum.Set) (act action, counted bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if !inst.echoes.Add(sender) {
		return act, false
	}
	if inst.echoes.Len() >= set.QuorumSize() && !inst.readySent {
		inst.readySent = true
		act.sendReady = true
	}
	return act, true
}

// ready counts a ready of the sender.
func (inst *instance) ready(sender int, set *quorum.Set) (act action, counted bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if !inst.readies.Add(sender) {
		return act, false
	}
	// amplification: enough readies to include a correct replica
	if inst.readies.Len() >= set.Amplification() && !inst.readySent {
		inst.readySent = true
		act.sendReady = true
	}
	if inst.readies.Len() >= set.QuorumSize() && !inst.delivering {
		inst.delivering = true
		act.deliver = true
	}
	return act, true
}

// finish records the delivery outcome and releases every waiter.
func (inst *instance) finish(outcome error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.outcome = outcome
	inst.delivered = true
	close(inst.doneCh)
}

func (inst *instance) done() <-chan struct{} {
	return inst.doneCh
}

// result is only meaningful after done is closed.
func (inst *instance) result() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.outcome
}
