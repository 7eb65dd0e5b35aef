package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/grpc/codes"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/crypto"
)

// Response is the authenticated reply of a replica to any request.
// A success carries codes.OK and an optional Payload, a failure its code and reason in Message.
type Response struct {
	Replica     int        `json:"replica"`
	Fingerprint []byte     `json:"fingerprint"`
	Code        codes.Code `json:"code"`
	Message     string     `json:"message,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	MAC         []byte     `json:"mac"`
}

// NewResponse creates and signs the Response of replica to the request with the given
// fingerprint. A non nil err is reported by its class and reason only.
func NewResponse(replica int, fingerprint, payload []byte, err error, signer crypto.Signer) (*Response, error) {
	code, reason := bboard.Code(err)
	resp := &Response{
		Replica:     replica,
		Fingerprint: fingerprint,
		Code:        code,
		Message:     reason,
	}
	if code == codes.OK {
		resp.Payload = payload
	}

	sig, err := signer.Sign(resp.Canonical())
	if err != nil {
		return nil, err
	}
	resp.MAC = sig.Body
	return resp, nil
}

// Canonical is what the replica MAC covers: the replica, the request fingerprint, the code
// and the payload or the error message.
func (r *Response) Canonical() []byte {
	return encoder(nil).
		uint(uint64(r.Replica)).
		bytes(r.Fingerprint).
		uint(uint64(r.Code)).
		str(r.Message).
		bytes(r.Payload)
}

func (r *Response) Auth() []byte {
	return r.MAC
}

// Err returns the error the Response reports, nil for a success.
func (r *Response) Err() error {
	return bboard.FromCode(r.Code, r.Message)
}

// Class identifies the semantic content of the Response regardless of the replying replica.
// Responses of honest replicas to the same request fall in the same class.
func (r *Response) Class() string {
	digest := sha256.Sum256(r.Payload)
	return strconv.FormatUint(uint64(r.Code), 10) + "/" + r.Message + "/" + hex.EncodeToString(digest[:])
}

// Envelope wraps the Response for sending.
func (r *Response) Envelope() (Envelope, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Method: MethodResponse, Body: body}, nil
}

// DecodeResponse decodes the Response an Envelope carries.
func DecodeResponse(env Envelope) (*Response, error) {
	if env.Method != MethodResponse {
		return nil, fmt.Errorf("unexpected method %s", env.Method)
	}
	resp := &Response{}
	if err := json.Unmarshal(env.Body, resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}
