// Package replica composes the domain state, a persistence log and an agreement strategy into a
// replica of the bulletin board, and serves it over the wire.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/rebro"
	"github.com/iykyk-syn/bboard/store"
	"github.com/iykyk-syn/bboard/wire"
)

// Replica holds the state of the bulletin board and applies agreed writes to it.
type Replica struct {
	dir       *board.Directory
	log       store.Log
	agreement Agreement

	// applyLk serialises delivery, so that persistence order is application order
	applyLk sync.Mutex

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures the Replica.
type Option func(*Replica)

// WithMetrics sets the Metrics the Replica reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Replica) {
		r.metrics = m
	}
}

// WithLogger sets the logger of the Replica.
func WithLogger(log *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = log
	}
}

// New creates a Replica persisting to log and agreeing on writes with the Agreement agree builds.
func New(log store.Log, agree AgreementFn, opts ...Option) *Replica {
	r := &Replica{
		dir:    board.NewDirectory(),
		log:    log,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "replica")
	r.agreement = agree(r)
	return r
}

// Directory returns the domain state of the Replica.
func (r *Replica) Directory() *board.Directory {
	return r.dir
}

// Agreement returns the agreement strategy of the Replica.
func (r *Replica) Agreement() Agreement {
	return r.agreement
}

// Restore rebuilds the state from the log. It must be called before serving anything.
func (r *Replica) Restore(ctx context.Context) error {
	r.applyLk.Lock()
	defer r.applyLk.Unlock()

	var count int
	err := r.log.Replay(ctx, func(rec store.Record) error {
		key, a, err := decodeRecord(rec)
		if err != nil {
			return err
		}
		if a != nil {
			err = r.dir.Post(a)
		} else {
			_, err = r.dir.RegisterUser(key)
		}
		if err != nil && bboard.KindOf(err) != bboard.KindDuplicate && !errors.Is(err, bboard.ErrAlreadyExists) {
			return fmt.Errorf("restoring %s record %d: %w", rec.Type, count+1, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.UpdateState(r.dir.Users(), r.dir.Announcements())
	r.logger.InfoContext(ctx, "restored", "records", count, "users", r.dir.Users(), "announcements", r.dir.Announcements())
	return nil
}

// Verify validates a client write against the local state before agreement starts.
// Of sequencing it only rejects slots ahead of the free one, taken slots are rejected at
// delivery, as concurrent writes may still take them.
func (r *Replica) Verify(_ context.Context, w wire.Write) error {
	switch w.Method {
	case wire.MethodRegister:
		if _, err := r.dir.User(w.Register.Key); err == nil {
			return bboard.ErrAlreadyExists
		} else if !errors.Is(err, bboard.ErrUnknownUser) {
			return err
		}
		return nil
	case wire.MethodPost, wire.MethodPostGeneral:
		a := w.Post.Announcement()
		// a delivered announcement is acknowledged again
		if r.dir.Has(a.ID()) {
			return nil
		}
		if _, err := r.dir.User(a.Author); err != nil {
			return err
		}
		if err := a.Validate(); err != nil {
			return err
		}
		if err := r.dir.CheckReferences(a.References); err != nil {
			return err
		}
		b, err := r.dir.Board(a.Board)
		if err != nil {
			return err
		}
		if next := b.Len() + 1; a.Sequence > next {
			return fmt.Errorf("%w: slot %d is ahead of %d", bboard.ErrInvalidSequence, a.Sequence, next)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s is not a write", bboard.ErrInvalidRequest, w.Method)
	}
}

// Deliver applies an agreed write: it checks the write against the current state, persists it
// and commits it. Sequencing faults surface here. A write failing only for writes not delivered
// here yet is reported as rebro.ErrPremature and changes nothing.
func (r *Replica) Deliver(ctx context.Context, w wire.Write) error {
	r.applyLk.Lock()
	defer r.applyLk.Unlock()

	var err error
	switch w.Method {
	case wire.MethodRegister:
		err = r.deliverRegister(ctx, w.Register)
	case wire.MethodPost, wire.MethodPostGeneral:
		err = r.deliverPost(ctx, w.Post)
	default:
		err = fmt.Errorf("%w: %s is not a write", bboard.ErrInvalidRequest, w.Method)
	}
	if err != nil {
		return err
	}

	r.metrics.UpdateState(r.dir.Users(), r.dir.Announcements())
	return nil
}

func (r *Replica) deliverRegister(ctx context.Context, req *wire.RegisterRequest) error {
	if _, err := r.dir.User(req.Key); err == nil {
		return bboard.ErrAlreadyExists
	}

	rec, err := registerRecord(req.Key)
	if err != nil {
		return err
	}
	if err = r.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("persisting registration: %w", err)
	}

	if _, err = r.dir.RegisterUser(req.Key); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "registered", "user", fmt.Sprintf("%x", req.Key))
	return nil
}

func (r *Replica) deliverPost(ctx context.Context, req *wire.PostRequest) error {
	a := req.Announcement()
	if err := r.dir.CheckPost(a); err != nil {
		if r.premature(a, err) {
			return fmt.Errorf("%w: %w", rebro.ErrPremature, err)
		}
		return err
	}

	rec, err := postRecord(a)
	if err != nil {
		return err
	}
	if err = r.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("persisting announcement: %w", err)
	}

	if err = r.dir.Post(a); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "posted", "board", a.Board, "sequence", a.Sequence, "id", a.ID())
	return nil
}

// premature reports whether the announcement was refused for a dependency only: its author or
// board owner, a reference or the previous slot of its board.
func (r *Replica) premature(a *board.Announcement, err error) bool {
	switch {
	case errors.Is(err, bboard.ErrUnknownUser), errors.Is(err, bboard.ErrInvalidBoard):
		return true
	case errors.Is(err, bboard.ErrInvalidReference):
		for _, ref := range a.References {
			if !r.dir.Has(ref) {
				return true
			}
		}
		return false
	case errors.Is(err, bboard.ErrInvalidSequence):
		b, bErr := r.dir.Board(a.Board)
		return bErr == nil && a.Sequence > b.Len()+1
	default:
		return false
	}
}

// Register agrees on and applies a registration.
func (r *Replica) Register(ctx context.Context, req *wire.RegisterRequest) error {
	return r.agreement.Agree(ctx, wire.NewRegister(req))
}

// Post agrees on and applies an announcement to the personal board of its author.
// It returns the id of the announcement.
func (r *Replica) Post(ctx context.Context, req *wire.PostRequest) (string, error) {
	return r.post(ctx, wire.MethodPost, req)
}

// PostGeneral agrees on and applies an announcement to the general board.
func (r *Replica) PostGeneral(ctx context.Context, req *wire.PostRequest) (string, error) {
	return r.post(ctx, wire.MethodPostGeneral, req)
}

func (r *Replica) post(ctx context.Context, method wire.Method, req *wire.PostRequest) (string, error) {
	if err := r.agreement.Agree(ctx, wire.NewPost(method, req)); err != nil {
		return "", err
	}
	return req.Announcement().ID(), nil
}

// Read returns the last count announcements of the personal board of key, all for zero.
func (r *Replica) Read(_ context.Context, key []byte, count int64) ([]board.Announcement, error) {
	u, err := r.dir.User(key)
	if err != nil {
		return nil, err
	}
	return readBoard(u.Board(), count)
}

// ReadGeneral returns the last count announcements of the general board, all for zero.
func (r *Replica) ReadGeneral(_ context.Context, count int64) ([]board.Announcement, error) {
	return readBoard(r.dir.General(), count)
}

func readBoard(b *board.Board, count int64) ([]board.Announcement, error) {
	if count < 0 || count > int64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d", bboard.ErrInvalidCount, count)
	}
	return b.Read(int(count))
}
