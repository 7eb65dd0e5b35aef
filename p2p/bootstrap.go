package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

var bootstrapProtocol protocol.ID = "/bboard/bootstrap/1.0.0"

// Bootstrap lets a node learn the addresses of every peer another node knows.
type Bootstrap struct {
	host host.Host

	log *slog.Logger
}

func NewBootstrap(host host.Host) *Bootstrap {
	return &Bootstrap{
		host: host,
		log:  slog.With("module", "bootstrap"),
	}
}

// Start connects to the bootstrapper and then to all of its peers.
func (b *Bootstrap) Start(ctx context.Context, bootstrapper peer.AddrInfo) error {
	err := b.host.Connect(ctx, bootstrapper)
	if err != nil {
		return fmt.Errorf("connecting to bootstrapper: %w", err)
	}
	b.log.DebugContext(ctx, "connected to bootstrapper", "peer", bootstrapper.ID.ShortString())

	s, err := b.host.NewStream(ctx, bootstrapper.ID, bootstrapProtocol)
	if err != nil {
		return err
	}
	defer s.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(dl)
	}

	data, err := io.ReadAll(io.LimitReader(s, maxMessageSize))
	if err != nil {
		return err
	}

	var peers []peer.AddrInfo
	if err = json.Unmarshal(data, &peers); err != nil {
		return err
	}

	for _, p := range peers {
		if p.ID == b.host.ID() {
			continue
		}
		go func() {
			if err := b.host.Connect(ctx, p); err != nil {
				b.log.Warn("connecting to peer", "peer", p.ID.ShortString(), "err", err)
			}
		}()
	}

	b.log.Debug("started", "peers", len(peers))
	return nil
}

// Serve starts handing out the known peers to whoever asks.
func (b *Bootstrap) Serve() {
	b.host.SetStreamHandler(bootstrapProtocol, func(stream network.Stream) {
		defer stream.Close()
		_ = stream.SetDeadline(time.Now().Add(time.Second * 10))

		store := b.host.Peerstore()
		peerIDs := store.PeersWithAddrs()

		peers := make([]peer.AddrInfo, 0, len(peerIDs))
		for _, p := range peerIDs {
			peers = append(peers, store.PeerInfo(p))
		}

		data, err := json.Marshal(peers)
		if err != nil {
			b.log.Error("encoding peers", "err", err)
			return
		}
		if _, err = stream.Write(data); err != nil {
			b.log.Warn("writing peers", "err", err)
			return
		}
		_ = stream.CloseWrite()
	})
}

func (b *Bootstrap) Stop() {
	b.host.RemoveStreamHandler(bootstrapProtocol)
}
