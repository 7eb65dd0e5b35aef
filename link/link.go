// Package link implements authenticated reliable links to single replicas. A Link resends the
// identical request until the replica answers authentically, so transport faults and garbage
// replies are masked, while authenticated failures are surfaced.
package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/wire"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = time.Millisecond * 50
	defaultMaxBackoff  = time.Second * 2
)

// Conn carries a single call to one replica.
type Conn interface {
	Call(context.Context, wire.Envelope) (*wire.Response, error)
}

// Link is a reliable link to a single replica.
type Link struct {
	index int
	key   crypto.PubKey
	conn  Conn

	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration

	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures the Link.
type Option func(*Link)

// WithMaxAttempts bounds the number of sends of a single call.
// Zero or less resends until the context of the call is done.
func WithMaxAttempts(n int) Option {
	return func(l *Link) {
		l.maxAttempts = n
	}
}

// WithBackoff sets the first and the maximum pause between resends. The pause doubles every time.
func WithBackoff(first, max time.Duration) Option {
	return func(l *Link) {
		l.backoff = first
		l.maxBackoff = max
	}
}

// WithMetrics sets the Metrics the Link reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Link) {
		l.metrics = m
	}
}

// WithLogger sets the logger of the Link.
func WithLogger(log *slog.Logger) Option {
	return func(l *Link) {
		l.log = log
	}
}

// New creates a Link to the replica with the given index and key.
func New(index int, key crypto.PubKey, conn Conn, opts ...Option) *Link {
	l := &Link{
		index:       index,
		key:         key,
		conn:        conn,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		maxBackoff:  defaultMaxBackoff,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("module", "link", "replica", index)
	return l
}

// Index returns the index of the replica the Link leads to.
func (l *Link) Index() int {
	return l.index
}

// Call sends the request until an authentic Response to it arrives.
func (l *Link) Call(ctx context.Context, env wire.Envelope, fingerprint []byte) (*wire.Response, error) {
	backoff := l.backoff
	for attempt := 1; ; attempt++ {
		resp, err := l.conn.Call(ctx, env)
		if err == nil {
			err = l.verify(resp, fingerprint)
		}
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if l.maxAttempts > 0 && attempt >= l.maxAttempts {
			return nil, fmt.Errorf("no authentic answer after %d attempts: %w", attempt, err)
		}

		l.log.DebugContext(ctx, "resending", "method", env.Method, "attempt", attempt, "err", err)
		l.metrics.RecordRetry()

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *Link) verify(resp *wire.Response, fingerprint []byte) error {
	switch {
	case resp == nil:
		return errors.New("empty response")
	case resp.Replica != l.index:
		return fmt.Errorf("response of replica %d", resp.Replica)
	case !bytes.Equal(resp.Fingerprint, fingerprint):
		return errors.New("response to another request")
	case !crypto.VerifyMAC(resp.Canonical(), resp.MAC, l.key):
		return errors.New("invalid response mac")
	default:
		return nil
	}
}
