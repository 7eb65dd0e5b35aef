// Package client implements the user side of the bulletin board: requests are authenticated
// with the user key and sent to every replica, and answers are accepted once enough replicas
// agree on them.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/wire"
)

// Client is a single user of the bulletin board.
type Client struct {
	key    ed25519.PrivateKey
	quorum *Quorum
}

// New creates a Client acting as the owner of key.
func New(key ed25519.PrivateKey, quorum *Quorum) *Client {
	return &Client{key: key, quorum: quorum}
}

// Key returns the public key of the user.
func (c *Client) Key() ed25519.PublicKey {
	return c.key.Public()
}

// Board returns the id of the personal board of the user.
func (c *Client) Board() string {
	return c.Key().String()
}

// Register registers the user. A user registered before gets bboard.ErrAlreadyExists.
func (c *Client) Register(ctx context.Context) error {
	req, err := wire.NewRegisterRequest(c.key)
	if err != nil {
		return err
	}
	_, err = c.write(ctx, wire.NewRegister(req))
	return err
}

// Post posts an Announcement on the personal board of the user and returns its id.
func (c *Client) Post(ctx context.Context, seq uint64, content string, refs ...string) (string, error) {
	return c.post(ctx, wire.MethodPost, c.Board(), seq, content, refs...)
}

// PostGeneral posts an Announcement on the general board and returns its id.
func (c *Client) PostGeneral(ctx context.Context, seq uint64, content string, refs ...string) (string, error) {
	return c.post(ctx, wire.MethodPostGeneral, board.GeneralID, seq, content, refs...)
}

func (c *Client) post(ctx context.Context, method wire.Method, boardID string, seq uint64, content string, refs ...string) (string, error) {
	req, err := wire.NewPostRequest(c.key, boardID, seq, content, refs...)
	if err != nil {
		return "", err
	}

	resp, err := c.write(ctx, wire.NewPost(method, req))
	if err != nil {
		return "", err
	}
	id := req.Announcement().ID()
	if string(resp.Payload) != id {
		return "", fmt.Errorf("%w: acknowledged %q instead of %q", bboard.ErrConsensus, resp.Payload, id)
	}
	return id, nil
}

func (c *Client) write(ctx context.Context, w wire.Write) (*wire.Response, error) {
	env, err := w.Envelope()
	if err != nil {
		return nil, err
	}
	resp, err := c.quorum.Call(ctx, env, w.Fingerprint())
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// Read returns the last n Announcements of the personal board of key, oldest first.
// n=0 reads the whole board.
func (c *Client) Read(ctx context.Context, key ed25519.PublicKey, n int64) ([]board.Announcement, error) {
	return c.read(ctx, wire.MethodRead, key, n)
}

// ReadGeneral returns the last n Announcements of the general board, oldest first.
// n=0 reads the whole board.
func (c *Client) ReadGeneral(ctx context.Context, n int64) ([]board.Announcement, error) {
	return c.read(ctx, wire.MethodReadGeneral, nil, n)
}

func (c *Client) read(ctx context.Context, method wire.Method, key []byte, n int64) ([]board.Announcement, error) {
	req, err := wire.NewReadRequest(key, n)
	if err != nil {
		return nil, err
	}
	env, err := wire.NewEnvelope(method, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.quorum.Call(ctx, env, wire.Fingerprint(method, req))
	if err != nil {
		return nil, err
	}
	if err = resp.Err(); err != nil {
		return nil, err
	}

	var list []board.Announcement
	if err = json.Unmarshal(resp.Payload, &list); err != nil {
		return nil, fmt.Errorf("decoding announcements: %w", err)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Sequence < list[j].Sequence
	})
	for i := range list {
		if err = list[i].Validate(); err != nil {
			return nil, fmt.Errorf("announcement %d: %w", list[i].Sequence, err)
		}
	}
	return list, nil
}

// NextSequence returns the sequence the next post on the personal board of the user must carry.
func (c *Client) NextSequence(ctx context.Context) (uint64, error) {
	list, err := c.Read(ctx, c.Key(), 1)
	return next(list, err)
}

// NextGeneralSequence returns the sequence of the free slot of the general board.
// A concurrent writer may still claim it first.
func (c *Client) NextGeneralSequence(ctx context.Context) (uint64, error) {
	list, err := c.ReadGeneral(ctx, 1)
	return next(list, err)
}

func next(list []board.Announcement, err error) (uint64, error) {
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 1, nil
	}
	return list[len(list)-1].Sequence + 1, nil
}
