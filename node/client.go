package node

import (
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"

	"github.com/iykyk-syn/bboard/client"
	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/link"
	"github.com/iykyk-syn/bboard/metrics"
	"github.com/iykyk-syn/bboard/p2p"
)

// NewClient creates a client of the configured replicas acting as the owner of key.
// It connects the host to the replicas lazily, as calls open streams.
func NewClient(cfg config.Config, key ed25519.PrivateKey, h host.Host, m *metrics.Metrics, logger *slog.Logger) (*client.Client, error) {
	set, err := cfg.Set()
	if err != nil {
		return nil, err
	}
	peers, err := p2p.Peers(set)
	if err != nil {
		return nil, err
	}
	addrs, err := cfg.Addrs()
	if err != nil {
		return nil, err
	}
	for index, id := range peers {
		h.Peerstore().AddAddr(id, addrs[index], time.Hour)
	}

	linkOpts := []link.Option{
		link.WithMaxAttempts(cfg.Attempts),
		link.WithMetrics(m),
		link.WithLogger(logger),
	}
	q, err := client.Dial(set, func(index int) link.Conn {
		return p2p.NewConn(h, peers[index])
	}, linkOpts, client.WithQuorumMetrics(m), client.WithQuorumLogger(logger))
	if err != nil {
		return nil, err
	}
	return client.New(key, q), nil
}
