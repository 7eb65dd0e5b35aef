// Package gossip broadcasts echo and ready votes over a libp2p pubsub topic.
package gossip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/iykyk-syn/bboard/rebro"
	"github.com/iykyk-syn/bboard/wire"
)

const validatorTimeout = time.Second * 5

// Broadcaster publishes votes of the local replica to a topic and hands votes of other replicas
// to a rebro.PeerHandler. Votes failing the handler are rejected, so pubsub does not forward them.
type Broadcaster struct {
	topicName string
	self      int
	local     peer.ID

	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	handler rebro.PeerHandler

	log *slog.Logger
}

// NewBroadcaster instantiates a new gossiping [Broadcaster] of the replica with the given index
// running on the host with the given id.
func NewBroadcaster(topic string, self int, local peer.ID, ps *pubsub.PubSub) *Broadcaster {
	return &Broadcaster{
		topicName: topic,
		self:      self,
		local:     local,
		pubsub:    ps,
	}
}

// Start joins the topic and starts dispatching votes of other replicas to the handler.
func (bro *Broadcaster) Start(handler rebro.PeerHandler) (err error) {
	if bro.log == nil {
		bro.log = slog.Default().With("module", "gossip", "replica", bro.self)
	}
	bro.handler = handler

	bro.topic, err = bro.pubsub.Join(bro.topicName)
	if err != nil {
		return err
	}

	// pubsub forces us to create at least one subscription
	bro.sub, err = bro.topic.Subscribe()
	if err != nil {
		return err
	}
	go func() {
		for {
			_, err := bro.sub.Next(context.Background())
			if err != nil {
				return
			}
		}
	}()

	return bro.pubsub.RegisterTopicValidator(
		bro.topicName,
		bro.deliverGossip,
		pubsub.WithValidatorTimeout(validatorTimeout),
	)
}

func (bro *Broadcaster) Stop(context.Context) (err error) {
	bro.sub.Cancel()
	err = errors.Join(err, bro.pubsub.UnregisterTopicValidator(bro.topicName))
	err = errors.Join(err, bro.topic.Close())
	return err
}

// Peers lists the peers known to be subscribed to the topic.
func (bro *Broadcaster) Peers() []peer.ID {
	return bro.topic.ListPeers()
}

// Broadcast publishes the vote to the topic.
func (bro *Broadcaster) Broadcast(ctx context.Context, msg *wire.PeerMessage) error {
	env, err := msg.Envelope()
	if err != nil {
		return err
	}

	bin, err := env.MarshalBinary()
	if err != nil {
		return err
	}

	return bro.topic.Publish(ctx, bin)
}

// deliverGossip delivers a PubSub gossip and reports its validity status
func (bro *Broadcaster) deliverGossip(ctx context.Context, from peer.ID, gossip *pubsub.Message) (res pubsub.ValidationResult) {
	defer func() {
		// recover from potential panics caused by network gossips
		err := recover()
		if err != nil {
			bro.log.ErrorContext(ctx, "deliver gossip panic", "err", err)
			res = pubsub.ValidationReject
		}
	}()

	msg, err := decode(gossip.Data)
	if err != nil {
		bro.log.ErrorContext(ctx, "unmarshalling gossip data", "err", err)
		return pubsub.ValidationReject
	}
	// own votes are counted locally by the engine
	if from == bro.local && msg.Sender == bro.self {
		return pubsub.ValidationAccept
	}

	err = bro.handler.HandlePeer(ctx, msg)
	if err != nil {
		bro.log.WarnContext(ctx, "processing gossip", "sender", msg.Sender, "err", err)
		return pubsub.ValidationReject
	}

	return pubsub.ValidationAccept
}

func decode(data []byte) (*wire.PeerMessage, error) {
	var env wire.Envelope
	if err := env.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if !env.Method.IsPeer() {
		return nil, fmt.Errorf("unexpected method %s", env.Method)
	}

	msg := &wire.PeerMessage{}
	if err := env.Decode(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MessageID addresses gossips by content. Unsigned gossips carry no origin and sequence number,
// so the default id would collide.
func MessageID(pmsg *pb.Message) string {
	h := sha256.Sum256(pmsg.GetData())
	return hex.EncodeToString(h[:])
}
