package wire

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

const nonceSize = 16

// RegisterRequest asks to create a user for Key. The MAC by the same key proves possession of it.
type RegisterRequest struct {
	Key   []byte `json:"key"`
	Nonce []byte `json:"nonce"`
	MAC   []byte `json:"mac"`
}

// NewRegisterRequest creates a RegisterRequest authenticated by key.
func NewRegisterRequest(key ed25519.PrivateKey) (*RegisterRequest, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	req := &RegisterRequest{Key: key.Public(), Nonce: nonce}
	mac, err := crypto.MAC(req.Canonical(), key)
	if err != nil {
		return nil, err
	}
	req.MAC = mac
	return req, nil
}

func (r *RegisterRequest) Canonical() []byte {
	return encoder(nil).bytes(r.Key).bytes(r.Nonce)
}

func (r *RegisterRequest) Auth() []byte {
	return r.MAC
}

// Verify checks the key and the MAC made with it.
func (r *RegisterRequest) Verify() error {
	key, err := ed25519.BytesToPubKey(r.Key)
	if err != nil {
		return bboard.ErrInvalidKey
	}
	if !crypto.VerifyMAC(r.Canonical(), r.MAC, key) {
		return bboard.ErrInvalidMAC
	}
	return nil
}

// PostRequest carries a signed Announcement authenticated by its author.
type PostRequest struct {
	Key        []byte   `json:"key"`
	Sequence   uint64   `json:"sequence"`
	Content    string   `json:"content"`
	Signature  []byte   `json:"signature"`
	References []string `json:"references"`
	Board      string   `json:"board"`
	MAC        []byte   `json:"mac"`
}

// NewPostRequest signs an Announcement for the board and authenticates the request carrying it.
func NewPostRequest(key ed25519.PrivateKey, boardID string, seq uint64, content string, refs ...string) (*PostRequest, error) {
	a, err := board.NewAnnouncement(key, boardID, seq, content, refs...)
	if err != nil {
		return nil, err
	}

	req := &PostRequest{
		Key:        a.Author,
		Sequence:   a.Sequence,
		Content:    a.Content,
		Signature:  a.Signature,
		References: a.References,
		Board:      a.Board,
	}
	mac, err := crypto.MAC(req.Canonical(), key)
	if err != nil {
		return nil, err
	}
	req.MAC = mac
	return req, nil
}

func (r *PostRequest) Canonical() []byte {
	return encoder(nil).
		uint(r.Sequence).
		bytes(r.Key).
		str(r.Content).
		bytes(r.Signature).
		strs(r.References).
		str(r.Board)
}

func (r *PostRequest) Auth() []byte {
	return r.MAC
}

// Announcement returns the Announcement the request carries.
func (r *PostRequest) Announcement() *board.Announcement {
	refs := r.References
	if refs == nil {
		refs = []string{}
	}
	return &board.Announcement{
		Author:     ed25519.PublicKey(r.Key),
		Content:    r.Content,
		Signature:  r.Signature,
		Sequence:   r.Sequence,
		References: refs,
		Board:      r.Board,
	}
}

// Verify checks the key, that the board fits the method and the MAC of the author.
func (r *PostRequest) Verify(method Method) error {
	key, err := ed25519.BytesToPubKey(r.Key)
	if err != nil {
		return bboard.ErrInvalidKey
	}

	switch method {
	case MethodPost:
		if r.Board != hex.EncodeToString(key) {
			return fmt.Errorf("%w: %s is not the personal board of the author", bboard.ErrInvalidBoard, r.Board)
		}
	case MethodPostGeneral:
		if r.Board != board.GeneralID {
			return fmt.Errorf("%w: %s is not the general board", bboard.ErrInvalidBoard, r.Board)
		}
	default:
		return fmt.Errorf("%w: %s is not a post", bboard.ErrInvalidRequest, method)
	}

	if !crypto.VerifyMAC(r.Canonical(), r.MAC, key) {
		return bboard.ErrInvalidMAC
	}
	return nil
}

// ReadRequest asks for the last Count announcements of the board of Key,
// or of the general board when Key is empty.
type ReadRequest struct {
	Key   []byte `json:"key,omitempty"`
	Count int64  `json:"count"`
	Nonce []byte `json:"nonce"`
}

// NewReadRequest creates a ReadRequest with a fresh nonce, so every read is a distinct request.
func NewReadRequest(key []byte, count int64) (*ReadRequest, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &ReadRequest{Key: key, Count: count, Nonce: nonce}, nil
}

func (r *ReadRequest) Canonical() []byte {
	return encoder(nil).bytes(r.Key).uint(uint64(r.Count)).bytes(r.Nonce)
}

func (r *ReadRequest) Auth() []byte {
	return nil
}
