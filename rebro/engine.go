package rebro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/quorum"
	"github.com/iykyk-syn/bboard/wire"
)

// Engine runs broadcast instances of all the client writes a replica sees.
// One Engine serves every write kind of a replica.
type Engine struct {
	self   int
	set    *quorum.Set
	signer crypto.Signer

	verifier    Verifier
	deliverer   Deliverer
	broadcaster Broadcaster

	instancesLk sync.Mutex
	instances   map[string]*instance

	// applyLk serialises delivery and guards parked, the premature writes waiting for others
	applyLk sync.Mutex
	parked  map[string]wire.Write

	// ctx outlives any single client call, so that delivery proceeds regardless of their patience
	ctx    context.Context
	cancel context.CancelFunc
	// sendCtx bounds resending of votes to unreachable replicas
	sendCtx     context.Context
	stopSending context.CancelFunc

	wg      sync.WaitGroup
	stopLk  sync.Mutex
	stopped bool

	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithMetrics sets the Metrics the Engine reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger of the Engine.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine instantiates a new Engine for the replica with the given index in the set.
func NewEngine(
	self int,
	set *quorum.Set,
	signer crypto.Signer,
	verifier Verifier,
	deliverer Deliverer,
	broadcaster Broadcaster,
	opts ...Option,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	sendCtx, stopSending := context.WithCancel(ctx)
	e := &Engine{
		self:        self,
		set:         set,
		signer:      signer,
		verifier:    verifier,
		deliverer:   deliverer,
		broadcaster: broadcaster,
		instances:   make(map[string]*instance),
		parked:      make(map[string]wire.Write),
		ctx:         ctx,
		cancel:      cancel,
		sendCtx:     sendCtx,
		stopSending: stopSending,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("module", "rebro", "replica", self)
	return e
}

// Submit starts the broadcast of a client write and waits until the local replica delivers it.
// Writes failing authentication or validation are rejected without broadcasting anything.
// Cancelling ctx stops the wait only, the broadcast carries on.
func (e *Engine) Submit(ctx context.Context, w wire.Write) error {
	if err := w.Verify(); err != nil {
		return err
	}

	id := w.ID()
	inst := e.instance(id, w)
	// an identical retry of a delivered write gets the same outcome
	select {
	case <-inst.done():
		return inst.result()
	default:
	}

	if err := e.verifier.Verify(ctx, w); err != nil {
		return err
	}

	act, delivered, outcome := inst.submit()
	if delivered {
		return outcome
	}
	e.run(id, w, act)

	select {
	case <-inst.done():
		return inst.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Agree is Submit. It makes the Engine an agreement strategy of a replica.
func (e *Engine) Agree(ctx context.Context, w wire.Write) error {
	return e.Submit(ctx, w)
}

// HandlePeer counts a vote of another replica.
// Votes failing authentication are dropped and reported as bboard.ErrInvalidMAC.
func (e *Engine) HandlePeer(ctx context.Context, msg *wire.PeerMessage) error {
	if err := e.authenticate(msg); err != nil {
		e.metrics.RecordDropped()
		e.log.DebugContext(ctx, "dropping peer message", "sender", msg.Sender, "phase", msg.Phase, "err", err)
		return fmt.Errorf("%w: %w", bboard.ErrInvalidMAC, err)
	}

	e.receive(msg.Phase, msg.Sender, msg.Write)
	return nil
}

// Stop abandons votes still being resent to unreachable replicas and waits for in flight
// deliveries, aborting them when ctx is done.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopLk.Lock()
	e.stopped = true
	e.stopLk.Unlock()
	e.stopSending()

	waitCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitCh)
	}()

	var err error
	select {
	case <-waitCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	e.cancel()
	return err
}

func (e *Engine) authenticate(msg *wire.PeerMessage) error {
	if !msg.Phase.IsPeer() {
		return fmt.Errorf("unknown phase %s", msg.Phase)
	}
	if e.set.Get(msg.Sender) == nil {
		return fmt.Errorf("unknown sender %d", msg.Sender)
	}
	if !e.set.Verify(msg.Sender, msg.Canonical(), msg.MAC) {
		return errors.New("invalid replica mac")
	}
	// the write must originate from an authenticated client
	if err := msg.Write.Verify(); err != nil {
		return fmt.Errorf("invalid client write: %w", err)
	}
	return nil
}

// instance gets or lazily creates the state of the id. Instances are never removed,
// so retries and late votes of delivered writes stay idempotent.
func (e *Engine) instance(id string, w wire.Write) *instance {
	e.instancesLk.Lock()
	defer e.instancesLk.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		inst = newInstance(w, e.set)
		e.instances[id] = inst
	}
	return inst
}

func (e *Engine) receive(phase wire.Method, sender int, w wire.Write) {
	id := w.ID()
	inst := e.instance(id, w)

	var (
		act     action
		counted bool
	)
	switch phase {
	case wire.MethodEcho:
		act, counted = inst.echo(sender, e.set)
		if counted {
			e.metrics.RecordEcho()
		}
	case wire.MethodReady:
		act, counted = inst.ready(sender, e.set)
		if counted {
			e.metrics.RecordReady()
		}
	}
	e.run(id, w, act)
}

// run performs the action outside the instance lock, as local votes re-enter receive.
func (e *Engine) run(id string, w wire.Write, act action) {
	if act.sendEcho {
		e.send(wire.MethodEcho, w)
	}
	if act.sendReady {
		e.send(wire.MethodReady, w)
	}
	if act.deliver {
		e.deliver(id, w)
	}
}

// send votes for the write. Peers are reached asynchronously, the local vote is counted directly.
// The Broadcaster keeps resending to a peer until it gets the vote or the Engine stops.
func (e *Engine) send(phase wire.Method, w wire.Write) {
	msg, err := wire.NewPeerMessage(phase, w, e.self, e.signer)
	if err != nil {
		e.log.ErrorContext(e.ctx, "signing peer message", "phase", phase, "err", err)
		return
	}

	if !e.track() {
		return
	}
	go func() {
		defer e.wg.Done()
		if err := e.broadcaster.Broadcast(e.sendCtx, msg); err != nil {
			e.log.WarnContext(e.ctx, "broadcasting", "phase", phase, "write", w.ID(), "err", err)
		}
	}()

	e.receive(phase, e.self, w)
}

func (e *Engine) deliver(id string, w wire.Write) {
	if !e.track() {
		e.log.WarnContext(e.ctx, "not delivering on a stopped engine", "write", id)
		return
	}
	defer e.wg.Done()

	e.applyLk.Lock()
	defer e.applyLk.Unlock()

	if !e.apply(id, w) {
		e.parked[id] = w
		e.log.DebugContext(e.ctx, "parked premature write", "write", id, "method", w.Method)
		return
	}
	// the write may be what parked ones wait for, and so may each of them
	for progress := true; progress; {
		progress = false
		for id, w := range e.parked {
			if e.apply(id, w) {
				delete(e.parked, id)
				progress = true
			}
		}
	}
}

// apply hands the write to the Deliverer and settles its outcome.
// It reports false, settling nothing, for a premature write.
func (e *Engine) apply(id string, w wire.Write) bool {
	err := e.deliverer.Deliver(e.ctx, w)
	if errors.Is(err, ErrPremature) {
		return false
	}
	if errors.Is(err, bboard.ErrDuplicate) {
		err = nil
	}

	outcome := "ok"
	if err != nil {
		_, outcome = bboard.Code(err)
	}
	e.metrics.RecordDelivery(string(w.Method), outcome)
	e.log.DebugContext(e.ctx, "delivered", "write", id, "method", w.Method, "err", err)

	e.instance(id, w).finish(err)
	return true
}

// track accounts for an in flight task unless the Engine is stopped.
func (e *Engine) track() bool {
	e.stopLk.Lock()
	defer e.stopLk.Unlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	return true
}
