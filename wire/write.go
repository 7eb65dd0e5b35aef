package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/iykyk-syn/bboard"
)

// Write is a client operation agreed by broadcast before it is applied.
// Exactly one of Register and Post is set, matching Method.
type Write struct {
	Method   Method           `json:"method"`
	Register *RegisterRequest `json:"register,omitempty"`
	Post     *PostRequest     `json:"post,omitempty"`
}

// NewRegister wraps a RegisterRequest.
func NewRegister(req *RegisterRequest) Write {
	return Write{Method: MethodRegister, Register: req}
}

// NewPost wraps a PostRequest for the personal or the general board.
func NewPost(method Method, req *PostRequest) Write {
	return Write{Method: method, Post: req}
}

// Request returns the client request the Write wraps.
func (w Write) Request() Request {
	if w.Register != nil {
		return w.Register
	}
	if w.Post != nil {
		return w.Post
	}
	return empty{}
}

// Fingerprint is the fingerprint of the client request.
func (w Write) Fingerprint() []byte {
	return Fingerprint(w.Method, w.Request())
}

// ID is the stable id of the Write. Identical requests have identical ids.
func (w Write) ID() string {
	return hex.EncodeToString(w.Fingerprint())
}

// Verify checks the shape of the Write and the client MAC.
func (w Write) Verify() error {
	switch w.Method {
	case MethodRegister:
		if w.Register == nil || w.Post != nil {
			return fmt.Errorf("%w: malformed register", bboard.ErrInvalidRequest)
		}
		return w.Register.Verify()
	case MethodPost, MethodPostGeneral:
		if w.Post == nil || w.Register != nil {
			return fmt.Errorf("%w: malformed post", bboard.ErrInvalidRequest)
		}
		return w.Post.Verify(w.Method)
	default:
		return fmt.Errorf("%w: %s is not a write", bboard.ErrInvalidRequest, w.Method)
	}
}

// Envelope wraps the client request of the Write for sending.
func (w Write) Envelope() (Envelope, error) {
	return NewEnvelope(w.Method, w.Request())
}

// DecodeWrite decodes the Write an Envelope of a write method carries.
func DecodeWrite(env Envelope) (Write, error) {
	w := Write{Method: env.Method}
	var err error
	switch env.Method {
	case MethodRegister:
		w.Register = &RegisterRequest{}
		err = json.Unmarshal(env.Body, w.Register)
	case MethodPost, MethodPostGeneral:
		w.Post = &PostRequest{}
		err = json.Unmarshal(env.Body, w.Post)
	default:
		return Write{}, fmt.Errorf("%w: %s is not a write", bboard.ErrInvalidRequest, env.Method)
	}
	if err != nil {
		return Write{}, fmt.Errorf("%w: %w", bboard.ErrInvalidRequest, err)
	}
	return w, nil
}

type empty struct{}

func (empty) Canonical() []byte { return nil }
func (empty) Auth() []byte      { return nil }
