// Package node assembles replicas and clients of the bulletin board out of their configuration.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/crypto/local"
	"github.com/iykyk-syn/bboard/httpapi"
	"github.com/iykyk-syn/bboard/link"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/p2p"
	"github.com/iykyk-syn/bboard/quorum"
	"github.com/iykyk-syn/bboard/rebro"
	"github.com/iykyk-syn/bboard/rebro/gossip"
	"github.com/iykyk-syn/bboard/replica"
	"github.com/iykyk-syn/bboard/store"
)

// VotesTopic is the pubsub topic of echo and ready votes.
const VotesTopic = "/bboard/votes/1.0.0"

// NewHost creates the libp2p host of a replica or client identified by key.
func NewHost(key ed25519.PrivateKey, listen []string) (host.Host, error) {
	p2pKey, err := p2p.Identity(key)
	if err != nil {
		return nil, err
	}

	listenMAddrs := make([]multiaddr.Multiaddr, 0, len(listen))
	for _, s := range listen {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		listenMAddrs = append(listenMAddrs, addr)
	}

	opts := []libp2p.Option{
		libp2p.Identity(p2pKey),
		libp2p.ResourceManager(&network.NullResourceManager{}),
	}
	if len(listenMAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(listenMAddrs...))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}
	return libp2p.New(opts...)
}

// Replica is a running replica: its state, agreement, transport and status API.
type Replica struct {
	cfg   config.Config
	host  host.Host
	set   *quorum.Set
	peers map[int]peer.ID

	log       store.Log
	replica   *replica.Replica
	engine    *rebro.Engine
	gossip    *gossip.Broadcaster
	server    *p2p.Server
	bootstrap *p2p.Bootstrap
	http      *http.Server

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewReplica assembles the replica the configuration describes on the host.
// The key must be the one of the configured replica index.
func NewReplica(ctx context.Context, cfg config.Config, key ed25519.PrivateKey, h host.Host, logger *slog.Logger) (*Replica, error) {
	set, err := cfg.Set()
	if err != nil {
		return nil, err
	}
	if !set.Get(cfg.Index).PubKey.Equals(key.Public()) {
		return nil, fmt.Errorf("key does not belong to replica %d", cfg.Index)
	}
	peers, err := p2p.Peers(set)
	if err != nil {
		return nil, err
	}
	signer, err := local.NewSigner(key)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	log, err := openLog(cfg, logger)
	if err != nil {
		return nil, err
	}

	n := &Replica{
		cfg:       cfg,
		host:      h,
		set:       set,
		peers:     peers,
		log:       log,
		bootstrap: p2p.NewBootstrap(h),
		registry:  reg,
		logger:    logger.With("module", "node", "replica", cfg.Index),
	}

	agree := replica.Local
	if cfg.Agreement == config.AgreementBRB {
		var broadcaster rebro.Broadcaster
		switch cfg.Broadcast {
		case config.BroadcastGossip:
			ps, err := pubsub.NewGossipSub(ctx, h,
				pubsub.WithMessageSignaturePolicy(pubsub.StrictNoSign),
				pubsub.WithMessageIdFn(gossip.MessageID),
			)
			if err != nil {
				return nil, errors.Join(err, log.Close())
			}
			n.gossip = gossip.NewBroadcaster(VotesTopic, cfg.Index, h.ID(), ps)
			broadcaster = n.gossip
		default:
			broadcaster = p2p.NewMulticast(h, cfg.Index, set, peers, link.WithLogger(logger))
		}

		agree = func(r *replica.Replica) replica.Agreement {
			n.engine = rebro.NewEngine(cfg.Index, set, signer, r, r, broadcaster,
				rebro.WithMetrics(m), rebro.WithLogger(logger))
			return n.engine
		}
	}
	n.replica = replica.New(log, agree, replica.WithMetrics(m), replica.WithLogger(logger))

	svcOpts := []replica.ServiceOption{replica.WithServiceMetrics(m), replica.WithServiceLogger(logger)}
	if n.engine != nil && n.gossip == nil {
		svcOpts = append(svcOpts, replica.WithPeers(n.engine))
	}
	n.server = p2p.NewServer(h, replica.NewService(cfg.Index, n.replica, signer, svcOpts...))

	if cfg.HTTPAddress != "" {
		handler, err := httpapi.NewHTTPHandler(httpapi.Dependencies{
			Replica:  n.replica,
			Index:    cfg.Index,
			Gatherer: reg,
			Logger:   logger,
		})
		if err != nil {
			return nil, errors.Join(err, log.Close())
		}
		n.http = &http.Server{Addr: cfg.HTTPAddress, Handler: handler, ReadHeaderTimeout: time.Second * 5}
	}
	return n, nil
}

func openLog(cfg config.Config, logger *slog.Logger) (store.Log, error) {
	switch cfg.StoreKind {
	case config.StoreMemory:
		return store.NewMemLog(), nil
	case config.StoreSQLite:
		return store.OpenSQLiteLog(cfg.StorePath)
	default:
		opts := []store.FileOption{store.WithFileLogger(logger)}
		if cfg.StoreCompress {
			opts = append(opts, store.WithCompression())
		}
		return store.OpenFileLog(cfg.StorePath, opts...)
	}
}

// Replica returns the replica state.
func (n *Replica) Replica() *replica.Replica {
	return n.replica
}

// Host returns the libp2p host of the replica.
func (n *Replica) Host() host.Host {
	return n.host
}

// Start restores the state from the log and starts serving.
func (n *Replica) Start(ctx context.Context) error {
	if err := n.replica.Restore(ctx); err != nil {
		return fmt.Errorf("restoring: %w", err)
	}

	n.server.Start()
	n.bootstrap.Serve()
	if n.gossip != nil {
		if err := n.gossip.Start(n.engine); err != nil {
			return err
		}
	}

	if err := connect(ctx, n.host, n.cfg, n.peers, n.logger); err != nil {
		return err
	}

	if n.http != nil {
		go func() {
			n.logger.Info("http starting", "address", n.cfg.HTTPAddress)
			err := n.http.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.logger.Error("serving http", "err", err)
			}
		}()
	}

	n.logger.InfoContext(ctx, "started",
		"peer", n.host.ID().String(),
		"replicas", n.set.Len(),
		"faults", n.set.Faults(),
		"agreement", n.cfg.Agreement,
		"broadcast", n.cfg.Broadcast,
	)
	return nil
}

// Stop stops serving, waits for in flight votes and closes the log.
func (n *Replica) Stop(ctx context.Context) (err error) {
	if n.http != nil {
		err = errors.Join(err, n.http.Shutdown(ctx))
	}
	n.server.Stop()
	n.bootstrap.Stop()
	if n.engine != nil {
		err = errors.Join(err, n.engine.Stop(ctx))
	}
	if n.gossip != nil {
		err = errors.Join(err, n.gossip.Stop(ctx))
	}
	return errors.Join(err, n.log.Close())
}

// connect dials every other configured replica and the bootstrapper in the background.
func connect(ctx context.Context, h host.Host, cfg config.Config, peers map[int]peer.ID, logger *slog.Logger) error {
	addrs, err := cfg.Addrs()
	if err != nil {
		return err
	}
	for index, id := range peers {
		if id == h.ID() {
			continue
		}
		info := peer.AddrInfo{ID: id, Addrs: []multiaddr.Multiaddr{addrs[index]}}
		go func() {
			if err := h.Connect(ctx, info); err != nil {
				logger.Warn("connecting to replica", "index", index, "err", err)
			}
		}()
	}

	if cfg.Bootstrap == "" {
		return nil
	}
	info, err := peer.AddrInfoFromString(cfg.Bootstrap)
	if err != nil {
		return fmt.Errorf("wrong bootstrapper multiaddr: %w", err)
	}
	return p2p.NewBootstrap(h).Start(ctx, *info)
}
