package replica

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/crypto/local"
	"github.com/iykyk-syn/bboard/store"
	"github.com/iykyk-syn/bboard/wire"
)

func TestRegisterAndRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	r := New(store.NewMemLog(), Local)
	pub, priv := genKeys(t)

	require.NoError(t, r.Register(ctx, registerRequest(t, priv)))
	assert.ErrorIs(t, r.Register(ctx, registerRequest(t, priv)), bboard.ErrAlreadyExists)

	list, err := r.Read(ctx, pub, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 1, r.Directory().Users())

	other, _ := genKeys(t)
	_, err = r.Read(ctx, other, 0)
	assert.ErrorIs(t, err, bboard.ErrUnknownUser)
	_, err = r.Read(ctx, pub, -1)
	assert.ErrorIs(t, err, bboard.ErrInvalidCount)
}

func TestPostSequencing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	log := store.NewMemLog()
	r := New(log, Local)
	pub, priv := genKeys(t)
	require.NoError(t, r.Register(ctx, registerRequest(t, priv)))

	first := postRequest(t, priv, pub.String(), 1, "first")
	id, err := r.Post(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.Announcement().ID(), id)

	// resending the same request is acknowledged without a second entry
	again, err := r.Post(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = r.Post(ctx, postRequest(t, priv, pub.String(), 1, "replay"))
	assert.ErrorIs(t, err, bboard.ErrInvalidSequence)

	list, err := r.Read(ctx, pub, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Content)
	assert.Equal(t, 2, log.Len())
}

func TestPostValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	log := store.NewMemLog()
	r := New(log, Local)
	pub, priv := genKeys(t)

	_, err := r.Post(ctx, postRequest(t, priv, pub.String(), 1, "early"))
	assert.ErrorIs(t, err, bboard.ErrUnknownUser)

	require.NoError(t, r.Register(ctx, registerRequest(t, priv)))
	_, err = r.PostGeneral(ctx, postRequest(t, priv, board.GeneralID, 1, "hi", "deadbeef"))
	assert.ErrorIs(t, err, bboard.ErrInvalidReference)

	_, err = r.Post(ctx, postRequest(t, priv, board.GeneralID, 1, "wrong board"))
	assert.ErrorIs(t, err, bboard.ErrInvalidBoard)

	tampered := postRequest(t, priv, pub.String(), 1, "hi")
	tampered.Content = "changed"
	_, err = r.Post(ctx, tampered)
	assert.ErrorIs(t, err, bboard.ErrInvalidMAC)

	// only the registration got persisted
	assert.Equal(t, 1, log.Len())
}

func TestRestore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "replica.jsonl")
	log, err := store.OpenFileLog(path)
	require.NoError(t, err)

	r := New(log, Local)
	alice, alicePriv := genKeys(t)
	bob, bobPriv := genKeys(t)
	require.NoError(t, r.Register(ctx, registerRequest(t, alicePriv)))
	require.NoError(t, r.Register(ctx, registerRequest(t, bobPriv)))

	root, err := r.PostGeneral(ctx, postRequest(t, alicePriv, board.GeneralID, 1, "root"))
	require.NoError(t, err)
	_, err = r.Post(ctx, postRequest(t, bobPriv, bob.String(), 1, "reply", root))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	log, err = store.OpenFileLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	restored := New(log, Local)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 2, restored.Directory().Users())
	assert.True(t, restored.Directory().Has(root))

	general, err := restored.ReadGeneral(ctx, 0)
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.True(t, general[0].Author.Equals(alice))

	// the restored replica carries on from the restored sequence
	_, err = restored.Post(ctx, postRequest(t, bobPriv, bob.String(), 1, "stale"))
	assert.ErrorIs(t, err, bboard.ErrInvalidSequence)
	_, err = restored.Post(ctx, postRequest(t, bobPriv, bob.String(), 2, "next"))
	require.NoError(t, err)
}

func TestService(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	signer := newSigner(t)
	svc := NewService(0, New(store.NewMemLog(), Local), signer)
	pub, priv := genKeys(t)

	reg := registerRequest(t, priv)
	env, err := wire.NewEnvelope(wire.MethodRegister, reg)
	require.NoError(t, err)
	resp := svc.Handle(ctx, env)
	assertAuthentic(t, signer.PubKey(), resp, wire.Fingerprint(wire.MethodRegister, reg))
	assert.Equal(t, codes.OK, resp.Code)

	resp = svc.Handle(ctx, env)
	assertAuthentic(t, signer.PubKey(), resp, wire.Fingerprint(wire.MethodRegister, reg))
	assert.Equal(t, codes.AlreadyExists, resp.Code)
	assert.ErrorIs(t, resp.Err(), bboard.ErrAlreadyExists)

	post := postRequest(t, priv, pub.String(), 1, "hello")
	env, err = wire.NewEnvelope(wire.MethodPost, post)
	require.NoError(t, err)
	resp = svc.Handle(ctx, env)
	assertAuthentic(t, signer.PubKey(), resp, wire.Fingerprint(wire.MethodPost, post))
	require.NoError(t, resp.Err())
	assert.Equal(t, post.Announcement().ID(), string(resp.Payload))

	read, err := wire.NewReadRequest(pub, 0)
	require.NoError(t, err)
	env, err = wire.NewEnvelope(wire.MethodRead, read)
	require.NoError(t, err)
	resp = svc.Handle(ctx, env)
	assertAuthentic(t, signer.PubKey(), resp, wire.Fingerprint(wire.MethodRead, read))
	require.NoError(t, resp.Err())

	var list []board.Announcement
	require.NoError(t, json.Unmarshal(resp.Payload, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Content)
	require.NoError(t, list[0].Validate())
}

func TestServiceFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	signer := newSigner(t)
	svc := NewService(3, New(store.NewMemLog(), Local), signer)

	resp := svc.Handle(ctx, wire.Envelope{Method: "unknown"})
	assert.Equal(t, codes.InvalidArgument, resp.Code)
	assert.Equal(t, 3, resp.Replica)
	assert.True(t, crypto.VerifyMAC(resp.Canonical(), resp.MAC, signer.PubKey()))

	resp = svc.Handle(ctx, wire.Envelope{Method: wire.MethodPost, Body: []byte("{")})
	assert.ErrorIs(t, resp.Err(), bboard.ErrInvalidRequest)

	// votes are refused without a broadcast engine
	_, clientPriv := genKeys(t)
	msg, err := wire.NewPeerMessage(wire.MethodEcho, wire.NewRegister(registerRequest(t, clientPriv)), 1, newSigner(t))
	require.NoError(t, err)
	env, err := msg.Envelope()
	require.NoError(t, err)
	resp = svc.Handle(ctx, env)
	assert.Equal(t, codes.InvalidArgument, resp.Code)

	// internal faults carry a generic reason only
	svc = NewService(0, New(store.NewMemLog(), panicking), signer)
	env, err = wire.NewEnvelope(wire.MethodRegister, registerRequest(t, clientPriv))
	require.NoError(t, err)
	resp = svc.Handle(ctx, env)
	assert.Equal(t, codes.Canceled, resp.Code)
	assert.Equal(t, bboard.ErrInternal.Reason, resp.Message)
	assert.True(t, crypto.VerifyMAC(resp.Canonical(), resp.MAC, signer.PubKey()))
}

func panicking(*Replica) Agreement {
	return panicAgreement{}
}

type panicAgreement struct{}

func (panicAgreement) Agree(context.Context, wire.Write) error {
	panic("disk on fire")
}

func assertAuthentic(t *testing.T, key crypto.PubKey, resp *wire.Response, fingerprint []byte) {
	t.Helper()
	require.NotNil(t, resp)
	assert.Equal(t, fingerprint, resp.Fingerprint)
	assert.True(t, crypto.VerifyMAC(resp.Canonical(), resp.MAC, key))
}

func genKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenKeys()
	require.NoError(t, err)
	return pub, priv
}

func newSigner(t *testing.T) *local.Signer {
	_, priv := genKeys(t)
	signer, err := local.NewSigner(priv)
	require.NoError(t, err)
	return signer
}

func registerRequest(t *testing.T, priv ed25519.PrivateKey) *wire.RegisterRequest {
	req, err := wire.NewRegisterRequest(priv)
	require.NoError(t, err)
	return req
}

func postRequest(t *testing.T, priv ed25519.PrivateKey, boardID string, seq uint64, content string, refs ...string) *wire.PostRequest {
	req, err := wire.NewPostRequest(priv, boardID, seq, content, refs...)
	require.NoError(t, err)
	return req
}
