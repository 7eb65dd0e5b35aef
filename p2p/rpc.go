// Package p2p carries calls between clients and replicas and votes between replicas over
// libp2p streams. A replica's libp2p identity is its MAC key, so replica indexes resolve to peer ids
// without any additional configuration.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/iykyk-syn/bboard/wire"
)

// ProtocolID is the protocol of request-response calls.
const ProtocolID = protocol.ID("/bboard/rpc/1.0.0")

const (
	maxMessageSize = 1 << 20
	// serveTimeout bounds a single call, writes included, which wait for agreement
	serveTimeout = time.Second * 30
)

var errTooLarge = errors.New("message too large")

// Server serves calls arriving on the host with a wire.Handler.
type Server struct {
	host    host.Host
	handler wire.Handler

	log *slog.Logger
}

// NewServer creates a Server of the handler on the host.
func NewServer(host host.Host, handler wire.Handler) *Server {
	return &Server{
		host:    host,
		handler: handler,
		log:     slog.Default().With("module", "p2p", "peer", host.ID().ShortString()),
	}
}

func (s *Server) Start() {
	s.host.SetStreamHandler(ProtocolID, func(stream network.Stream) {
		if err := s.serve(stream); err != nil {
			s.log.Error("serving stream", "remote", stream.Conn().RemotePeer().ShortString(), "err", err)
			_ = stream.Reset()
		}
	})
}

func (s *Server) Stop() {
	s.host.RemoveStreamHandler(ProtocolID)
}

func (s *Server) serve(stream network.Stream) error {
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serveTimeout)
	defer cancel()
	if err := stream.SetDeadline(time.Now().Add(serveTimeout)); err != nil {
		s.log.Warn("error setting deadline", "err", err)
	}

	env, err := readEnvelope(stream)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	resp, err := s.handler.Handle(ctx, env).Envelope()
	if err != nil {
		return err
	}
	return writeEnvelope(stream, resp)
}

// Conn is a connection to a single replica.
type Conn struct {
	host host.Host
	to   peer.ID
}

// NewConn creates a Conn from the host to the given peer.
func NewConn(host host.Host, to peer.ID) *Conn {
	return &Conn{host: host, to: to}
}

// Call sends the request on a new stream and waits for the reply.
func (c *Conn) Call(ctx context.Context, env wire.Envelope) (*wire.Response, error) {
	stream, err := c.host.NewStream(ctx, c.to, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	// set stream deadline from the context deadline.
	// if it is empty, the server closes the stream by its own timeout.
	if dl, ok := ctx.Deadline(); ok {
		if err = stream.SetDeadline(dl); err != nil {
			return nil, err
		}
	}

	if err = writeEnvelope(stream, env); err != nil {
		return nil, err
	}
	if err = stream.CloseWrite(); err != nil {
		return nil, err
	}

	out, err := readEnvelope(stream)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return wire.DecodeResponse(out)
}

func readEnvelope(r io.Reader) (wire.Envelope, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMessageSize+1))
	if err != nil {
		return wire.Envelope{}, err
	}
	if len(data) > maxMessageSize {
		return wire.Envelope{}, errTooLarge
	}

	var env wire.Envelope
	return env, env.UnmarshalBinary(data)
}

func writeEnvelope(w io.Writer, env wire.Envelope) error {
	data, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) > maxMessageSize {
		return errTooLarge
	}
	_, err = w.Write(data)
	return err
}
