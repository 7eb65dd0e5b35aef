package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/link"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/quorum"
	"github.com/iykyk-syn/bboard/wire"
)

// Quorum turns the answers of N possibly lying replicas into a single trustworthy one.
// It accepts the first answer f+1 replicas agree on, as at least one of them is correct.
type Quorum struct {
	set   *quorum.Set
	links []*link.Link

	metrics *metrics.Metrics
	log     *slog.Logger
}

// QuorumOption configures the Quorum.
type QuorumOption func(*Quorum)

// WithQuorumMetrics sets the Metrics the Quorum reports to.
func WithQuorumMetrics(m *metrics.Metrics) QuorumOption {
	return func(q *Quorum) {
		q.metrics = m
	}
}

// WithQuorumLogger sets the logger of the Quorum.
func WithQuorumLogger(log *slog.Logger) QuorumOption {
	return func(q *Quorum) {
		q.log = log
	}
}

// NewQuorum creates a Quorum over links ordered by replica index.
func NewQuorum(set *quorum.Set, links []*link.Link, opts ...QuorumOption) (*Quorum, error) {
	if len(links) != set.Len() {
		return nil, fmt.Errorf("%d links for %d replicas", len(links), set.Len())
	}
	for i, l := range links {
		if l.Index() != i {
			return nil, fmt.Errorf("link %d leads to replica %d", i, l.Index())
		}
	}

	q := &Quorum{
		set:   set,
		links: links,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With("module", "quorum")
	return q, nil
}

// Dial creates Links to every replica of the set over the connections dial opens.
func Dial(set *quorum.Set, dial func(index int) link.Conn, linkOpts []link.Option, opts ...QuorumOption) (*Quorum, error) {
	links := make([]*link.Link, set.Len())
	for _, r := range set.All() {
		links[r.Index] = link.New(r.Index, r.PubKey, dial(r.Index), linkOpts...)
	}
	return NewQuorum(set, links, opts...)
}

// Call fans the request out to every replica. It returns the first Response shared by f+1
// replicas and cancels the rest of the calls. Authenticated failures are Responses as well.
// If every replica answered and none of the answers is shared by f+1 of them,
// it fails with bboard.ErrConsensus.
func (q *Quorum) Call(ctx context.Context, env wire.Envelope, fingerprint []byte) (*wire.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		resp *wire.Response
		err  error
	}
	resultCh := make(chan result, len(q.links))
	for _, l := range q.links {
		go func(l *link.Link) {
			resp, err := l.Call(ctx, env, fingerprint)
			resultCh <- result{resp: resp, err: err}
		}(l)
	}

	classes := make(map[string]int)
	for range q.links {
		select {
		case res := <-resultCh:
			if res.err != nil {
				q.log.DebugContext(ctx, "no answer", "method", env.Method, "err", res.err)
				continue
			}

			class := res.resp.Class()
			classes[class]++
			if classes[class] >= q.set.Amplification() {
				q.metrics.RecordQuorum("agreed")
				return res.resp, nil
			}
		case <-ctx.Done():
			q.metrics.RecordQuorum("cancelled")
			return nil, ctx.Err()
		}
	}

	q.metrics.RecordQuorum("consensus")
	q.log.WarnContext(ctx, "replicas disagree", "method", env.Method, "classes", len(classes))
	return nil, fmt.Errorf("%w: %d distinct answers", bboard.ErrConsensus, len(classes))
}
