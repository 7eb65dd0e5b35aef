package node

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/p2p"
)

func TestReplicas(t *testing.T) {
	tests := []struct {
		agreement string
		broadcast string
		store     string
		replicas  int
	}{
		{config.AgreementBRB, config.BroadcastMulticast, config.StoreMemory, 4},
		{config.AgreementBRB, config.BroadcastGossip, config.StoreFile, 4},
		{config.AgreementLocal, config.BroadcastMulticast, config.StoreSQLite, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s/%s", tt.agreement, tt.broadcast, tt.store), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
			t.Cleanup(cancel)

			cl := newCluster(t, tt.replicas, func(cfg *config.Config) {
				cfg.Agreement = tt.agreement
				cfg.Broadcast = tt.broadcast
				cfg.StoreKind = tt.store
				cfg.StorePath = filepath.Join(t.TempDir(), "bboard.log")
			})
			cl.start(ctx, t)

			_, key, err := ed25519.GenKeys()
			require.NoError(t, err)
			c, err := NewClient(cl.cfg, key, cl.clientHost, nil, slog.Default())
			require.NoError(t, err)

			require.NoError(t, c.Register(ctx))
			assert.ErrorIs(t, c.Register(ctx), bboard.ErrAlreadyExists)

			id, err := c.Post(ctx, 1, "over the wire")
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				for _, n := range cl.nodes {
					if !n.Replica().Directory().Has(id) {
						return false
					}
				}
				return true
			}, time.Second*10, time.Millisecond*20)

			list, err := c.Read(ctx, c.Key(), 0)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "over the wire", list[0].Content)
		})
	}
}

func TestWrongKey(t *testing.T) {
	cl := newCluster(t, 1, func(*config.Config) {})
	_, other, err := ed25519.GenKeys()
	require.NoError(t, err)

	_, err = NewReplica(context.Background(), cl.cfg, other, cl.hosts[0], slog.Default())
	assert.Error(t, err)
}

type cluster struct {
	cfg        config.Config
	keys       []ed25519.PrivateKey
	hosts      []host.Host
	clientHost host.Host
	nodes      []*Replica
}

func newCluster(t *testing.T, n int, configure func(*config.Config)) *cluster {
	mn := mocknet.New()
	t.Cleanup(func() { _ = mn.Close() })

	cl := &cluster{
		cfg: config.Config{
			Agreement: config.AgreementBRB,
			Broadcast: config.BroadcastMulticast,
			StoreKind: config.StoreMemory,
			Timeout:   time.Second * 10,
			Attempts:  3,
		},
		keys:  make([]ed25519.PrivateKey, n),
		hosts: make([]host.Host, n),
	}
	for i := range n {
		pub, priv, err := ed25519.GenKeys()
		require.NoError(t, err)
		ident, err := p2p.Identity(priv)
		require.NoError(t, err)
		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", 4001+i))
		require.NoError(t, err)

		cl.hosts[i], err = mn.AddPeer(ident, addr)
		require.NoError(t, err)
		cl.keys[i] = priv
		cl.cfg.Replicas = append(cl.cfg.Replicas, config.Replica{Key: pub.String(), Addr: addr.String()})
	}

	var err error
	cl.clientHost, err = mn.GenPeer()
	require.NoError(t, err)
	require.NoError(t, mn.LinkAll())

	configure(&cl.cfg)
	return cl
}

func (cl *cluster) start(ctx context.Context, t *testing.T) {
	cl.nodes = make([]*Replica, len(cl.hosts))
	for i, h := range cl.hosts {
		cfg := cl.cfg
		cfg.Index = i
		if cfg.StoreKind != config.StoreMemory {
			cfg.StorePath = fmt.Sprintf("%s.%d", cfg.StorePath, i)
		}

		n, err := NewReplica(ctx, cfg, cl.keys[i], h, slog.Default())
		require.NoError(t, err)
		require.NoError(t, n.Start(ctx))
		cl.nodes[i] = n
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for _, n := range cl.nodes {
			_ = n.Stop(ctx)
		}
	})

	// votes published before the mesh forms are lost
	require.Eventually(t, func() bool {
		for _, n := range cl.nodes {
			if n.gossip != nil && len(n.gossip.Peers()) < len(cl.nodes)-1 {
				return false
			}
		}
		return true
	}, time.Second*10, time.Millisecond*50)
}
