// Package wire defines everything that crosses a replica boundary: requests, writes agreed by
// broadcast, inter-replica messages, authenticated responses and their canonical encodings.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
)

// Method names an RPC.
type Method string

const (
	MethodRegister    Method = "register"
	MethodPost        Method = "post"
	MethodPostGeneral Method = "postGeneral"
	MethodRead        Method = "read"
	MethodReadGeneral Method = "readGeneral"
	MethodEcho        Method = "echo"
	MethodReady       Method = "ready"
	MethodResponse    Method = "response"
)

// IsWrite reports whether the Method changes replicated state and so goes through agreement.
func (m Method) IsWrite() bool {
	switch m {
	case MethodRegister, MethodPost, MethodPostGeneral:
		return true
	default:
		return false
	}
}

// IsPeer reports whether the Method is an inter-replica one.
func (m Method) IsPeer() bool {
	return m == MethodEcho || m == MethodReady
}

// Request is anything a Fingerprint can be taken of.
type Request interface {
	// Canonical returns the fixed order encoding of the semantically relevant fields.
	Canonical() []byte
	// Auth returns the MAC of the sender or nil for unauthenticated requests.
	Auth() []byte
}

// Fingerprint identifies a request by its method, content and MAC.
// Replicas sign responses over it and broadcast uses it as the write id.
func Fingerprint(method Method, req Request) []byte {
	enc := encoder(nil).str(string(method)).bytes(req.Canonical()).bytes(req.Auth())
	h := sha256.Sum256(enc)
	return h[:]
}

// encoder builds length prefixed canonical encodings.
type encoder []byte

func (e encoder) bytes(b []byte) encoder {
	e = binary.BigEndian.AppendUint32(e, uint32(len(b)))
	return append(e, b...)
}

func (e encoder) str(s string) encoder {
	return e.bytes([]byte(s))
}

func (e encoder) uint(v uint64) encoder {
	return binary.BigEndian.AppendUint64(e, v)
}

func (e encoder) strs(ss []string) encoder {
	e = binary.BigEndian.AppendUint32(e, uint32(len(ss)))
	for _, s := range ss {
		e = e.str(s)
	}
	return e
}
