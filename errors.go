// Package bboard is a replicated byzantine fault tolerant bulletin board.
//
// Clients register ed25519 identities, post signed announcements to a personal board or to the
// shared general board, and read them back. Every write is agreed by a static set of N=3f+1
// replicas through Byzantine Reliable Broadcast before being applied, and every reply is
// authenticated by the replying replica, so that a client accepts only what f+1 replicas agree on.
//
// This package defines the closed set of failures that cross the replica boundary.
package bboard

import (
	"errors"

	"google.golang.org/grpc/codes"
)

// Kind classifies failures.
type Kind uint8

const (
	// KindValidation is a malformed or inconsistent input rejected before any broadcast.
	KindValidation Kind = iota + 1
	// KindSequencing is a stale or skipped sequence number discovered at delivery time.
	KindSequencing
	// KindAuth is a MAC or signature that does not verify.
	KindAuth
	// KindDuplicate is an already delivered write. It is treated as success.
	KindDuplicate
	// KindConsensus is a quorum that could not agree on a single reply.
	KindConsensus
	// KindInternal is any uncaught fault.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSequencing:
		return "sequencing"
	case KindAuth:
		return "auth"
	case KindDuplicate:
		return "duplicate"
	case KindConsensus:
		return "consensus"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Only Reason is transmitted, so honest replicas that fail the
// same way produce byte-identical replies.
type Error struct {
	Kind   Kind
	Reason string
	code   codes.Code
}

func (e *Error) Error() string {
	return e.Reason
}

// Code returns the wire class of the Error.
func (e *Error) Code() codes.Code {
	if e.code != codes.OK {
		return e.code
	}
	switch e.Kind {
	case KindValidation, KindSequencing:
		return codes.InvalidArgument
	case KindAuth:
		return codes.Unauthenticated
	case KindDuplicate:
		return codes.OK
	case KindConsensus:
		return codes.Unavailable
	default:
		return codes.Canceled
	}
}

var (
	ErrAlreadyExists    = &Error{Kind: KindValidation, Reason: "user already exists", code: codes.AlreadyExists}
	ErrUnknownUser      = &Error{Kind: KindValidation, Reason: "unknown user"}
	ErrInvalidKey       = &Error{Kind: KindValidation, Reason: "invalid public key"}
	ErrContentTooLong   = &Error{Kind: KindValidation, Reason: "content too long"}
	ErrInvalidReference = &Error{Kind: KindValidation, Reason: "invalid reference"}
	ErrInvalidBoard     = &Error{Kind: KindValidation, Reason: "invalid board"}
	ErrInvalidCount     = &Error{Kind: KindValidation, Reason: "invalid count"}
	ErrInvalidRequest   = &Error{Kind: KindValidation, Reason: "invalid request"}
	ErrInvalidSequence  = &Error{Kind: KindSequencing, Reason: "invalid sequence"}
	ErrInvalidMAC       = &Error{Kind: KindAuth, Reason: "invalid mac"}
	ErrBadSignature     = &Error{Kind: KindAuth, Reason: "bad signature"}
	ErrNotOwner         = &Error{Kind: KindAuth, Reason: "not the board owner"}
	ErrDuplicate        = &Error{Kind: KindDuplicate, Reason: "already delivered"}
	ErrConsensus        = &Error{Kind: KindConsensus, Reason: "consensus not reached"}
	ErrInternal         = &Error{Kind: KindInternal, Reason: "internal error"}
)

var sentinels = []*Error{
	ErrAlreadyExists,
	ErrUnknownUser,
	ErrInvalidKey,
	ErrContentTooLong,
	ErrInvalidReference,
	ErrInvalidBoard,
	ErrInvalidCount,
	ErrInvalidRequest,
	ErrInvalidSequence,
	ErrInvalidMAC,
	ErrBadSignature,
	ErrNotOwner,
	ErrDuplicate,
	ErrConsensus,
	ErrInternal,
}

// KindOf reports the Kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Code maps err to its wire class and the reason transmitted with it.
// A nil error and a duplicate delivery both map to codes.OK.
func Code(err error) (codes.Code, string) {
	if err == nil {
		return codes.OK, ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return ErrInternal.Code(), ErrInternal.Reason
	}
	if e.Kind == KindDuplicate {
		return codes.OK, ""
	}
	return e.Code(), e.Reason
}

// FromCode is the inverse of Code. Known reasons are resolved to their sentinel,
// so errors.Is works on the client side of the wire.
func FromCode(code codes.Code, reason string) error {
	if code == codes.OK {
		return nil
	}
	for _, s := range sentinels {
		if s.Reason == reason && s.Code() == code {
			return s
		}
	}
	return &Error{Kind: kindForCode(code), Reason: reason, code: code}
}

func kindForCode(code codes.Code) Kind {
	switch code {
	case codes.InvalidArgument, codes.AlreadyExists:
		return KindValidation
	case codes.Unauthenticated:
		return KindAuth
	case codes.Unavailable:
		return KindConsensus
	default:
		return KindInternal
	}
}
