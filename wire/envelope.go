package wire

import (
	"context"
	"encoding/json"
	"fmt"

	"capnproto.org/go/capnp/v3"
)

// Envelope frames a single call or reply on a stream.
type Envelope struct {
	Method Method
	Body   []byte
}

// NewEnvelope encodes req as the body of an Envelope.
func NewEnvelope(method Method, req any) (Envelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s: %w", method, err)
	}
	return Envelope{Method: method, Body: body}, nil
}

// Decode decodes the body of the Envelope into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", e.Method, err)
	}
	return nil
}

// envelope is the capnp struct of envelope.capnp.
type envelope capnp.Struct

func newRootEnvelope(s *capnp.Segment) (envelope, error) {
	st, err := capnp.NewRootStruct(s, capnp.ObjectSize{DataSize: 0, PointerCount: 2})
	return envelope(st), err
}

func readRootEnvelope(msg *capnp.Message) (envelope, error) {
	root, err := msg.Root()
	return envelope(root.Struct()), err
}

func (e envelope) method() (string, error) {
	p, err := capnp.Struct(e).Ptr(0)
	return p.Text(), err
}

func (e envelope) setMethod(v string) error {
	return capnp.Struct(e).SetText(0, v)
}

func (e envelope) body() ([]byte, error) {
	p, err := capnp.Struct(e).Ptr(1)
	return p.Data(), err
}

func (e envelope) setBody(v []byte) error {
	return capnp.Struct(e).SetData(1, v)
}

func (e Envelope) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	env, err := newRootEnvelope(seg)
	if err != nil {
		return nil, fmt.Errorf("converting segment to envelope: %w", err)
	}
	if err = env.setMethod(string(e.Method)); err != nil {
		return nil, err
	}
	if err = env.setBody(e.Body); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("unmarshalling envelope: %w", err)
	}

	env, err := readRootEnvelope(msg)
	if err != nil {
		return fmt.Errorf("reading envelope root: %w", err)
	}
	method, err := env.method()
	if err != nil {
		return err
	}
	body, err := env.body()
	if err != nil {
		return err
	}

	e.Method = Method(method)
	e.Body = append([]byte(nil), body...)
	return nil
}

// Handler serves Envelopes. It always returns a Response, failures included.
type Handler interface {
	Handle(context.Context, Envelope) *Response
}
