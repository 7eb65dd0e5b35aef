package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/rebro"
	"github.com/iykyk-syn/bboard/wire"
)

// Service serves a Replica over the wire. Every reply, failures included, is authenticated with
// the key of the replica.
type Service struct {
	index   int
	replica *Replica
	signer  crypto.Signer
	peers   rebro.PeerHandler

	metrics *metrics.Metrics
	log     *slog.Logger
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithPeers makes the Service accept votes of other replicas and hand them to the PeerHandler.
func WithPeers(peers rebro.PeerHandler) ServiceOption {
	return func(s *Service) {
		s.peers = peers
	}
}

// WithServiceMetrics sets the Metrics the Service reports to.
func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceLogger sets the logger of the Service.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates the Service of the replica with the given index.
func NewService(index int, r *Replica, signer crypto.Signer, opts ...ServiceOption) *Service {
	s := &Service{
		index:   index,
		replica: r,
		signer:  signer,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("module", "service", "replica", index)
	return s
}

// Handle serves a single call.
func (s *Service) Handle(ctx context.Context, env wire.Envelope) (resp *wire.Response) {
	start := time.Now()
	fingerprint := wire.Fingerprint(env.Method, raw(env.Body))

	var (
		payload []byte
		err     error
	)
	defer func() {
		// uncaught faults are reported with a generic reason only
		if p := recover(); p != nil {
			s.log.ErrorContext(ctx, "handler panic", "method", env.Method, "err", p)
			payload, err = nil, bboard.ErrInternal
		}
		resp = s.respond(ctx, env.Method, fingerprint, payload, err)
		s.metrics.RecordRequest(string(env.Method), resp.Code.String(), time.Since(start))
	}()

	switch {
	case env.Method.IsWrite():
		fingerprint, payload, err = s.write(ctx, env)
	case env.Method.IsPeer():
		fingerprint, err = s.peer(ctx, env)
	case env.Method == wire.MethodRead, env.Method == wire.MethodReadGeneral:
		fingerprint, payload, err = s.read(ctx, env)
	default:
		err = fmt.Errorf("%w: unknown method %q", bboard.ErrInvalidRequest, env.Method)
	}
	return resp
}

func (s *Service) write(ctx context.Context, env wire.Envelope) ([]byte, []byte, error) {
	w, err := wire.DecodeWrite(env)
	if err != nil {
		return wire.Fingerprint(env.Method, raw(env.Body)), nil, err
	}
	fingerprint := w.Fingerprint()

	switch w.Method {
	case wire.MethodRegister:
		return fingerprint, nil, s.replica.Register(ctx, w.Register)
	case wire.MethodPost:
		id, err := s.replica.Post(ctx, w.Post)
		return fingerprint, []byte(id), err
	default:
		id, err := s.replica.PostGeneral(ctx, w.Post)
		return fingerprint, []byte(id), err
	}
}

func (s *Service) peer(ctx context.Context, env wire.Envelope) ([]byte, error) {
	msg := &wire.PeerMessage{}
	if err := env.Decode(msg); err != nil {
		return wire.Fingerprint(env.Method, raw(env.Body)), fmt.Errorf("%w: %w", bboard.ErrInvalidRequest, err)
	}
	fingerprint := wire.Fingerprint(env.Method, msg)

	if s.peers == nil {
		return fingerprint, fmt.Errorf("%w: votes are not accepted", bboard.ErrInvalidRequest)
	}
	if msg.Phase != env.Method {
		return fingerprint, fmt.Errorf("%w: phase %s sent as %s", bboard.ErrInvalidMAC, msg.Phase, env.Method)
	}
	return fingerprint, s.peers.HandlePeer(ctx, msg)
}

func (s *Service) read(ctx context.Context, env wire.Envelope) ([]byte, []byte, error) {
	req := &wire.ReadRequest{}
	if err := env.Decode(req); err != nil {
		return wire.Fingerprint(env.Method, raw(env.Body)), nil, fmt.Errorf("%w: %w", bboard.ErrInvalidRequest, err)
	}
	fingerprint := wire.Fingerprint(env.Method, req)

	var (
		err  error
		list any
	)
	if env.Method == wire.MethodReadGeneral {
		list, err = s.replica.ReadGeneral(ctx, req.Count)
	} else {
		list, err = s.replica.Read(ctx, req.Key, req.Count)
	}
	if err != nil {
		return fingerprint, nil, err
	}

	payload, err := json.Marshal(list)
	return fingerprint, payload, err
}

func (s *Service) respond(ctx context.Context, method wire.Method, fingerprint, payload []byte, err error) *wire.Response {
	switch kind := bboard.KindOf(err); {
	case err == nil:
	case kind == bboard.KindInternal:
		s.log.ErrorContext(ctx, "serving", "method", method, "err", err)
	default:
		s.log.DebugContext(ctx, "rejected", "method", method, "kind", kind, "err", err)
	}

	resp, signErr := wire.NewResponse(s.index, fingerprint, payload, err, s.signer)
	if signErr != nil {
		s.log.ErrorContext(ctx, "signing response", "method", method, "err", signErr)
		// an unsigned reply is discarded by clients as no answer
		return &wire.Response{Replica: s.index, Fingerprint: fingerprint, Code: bboard.ErrInternal.Code(), Message: bboard.ErrInternal.Reason}
	}
	return resp
}

// raw is the Request of an undecodable body.
type raw []byte

func (r raw) Canonical() []byte { return r }
func (r raw) Auth() []byte      { return nil }
