package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/iykyk-syn/bboard"
	"github.com/iykyk-syn/bboard/board"
	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/crypto/local"
)

func TestEnvelopeBinary(t *testing.T) {
	in := Envelope{Method: MethodPost, Body: []byte(`{"content":"hi"}`)}
	bin, err := in.MarshalBinary()
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, out.UnmarshalBinary(bin))
	assert.Equal(t, in, out)

	assert.Error(t, out.UnmarshalBinary([]byte{1, 2, 3}))
}

func TestRegisterRequest(t *testing.T) {
	_, priv := genKeys(t)
	req, err := NewRegisterRequest(priv)
	require.NoError(t, err)
	require.NoError(t, req.Verify())

	w := NewRegister(req)
	require.NoError(t, w.Verify())

	env, err := w.Envelope()
	require.NoError(t, err)
	decoded, err := DecodeWrite(env)
	require.NoError(t, err)
	assert.Equal(t, w.ID(), decoded.ID())

	req.Nonce[0] ^= 0xff
	assert.ErrorIs(t, req.Verify(), bboard.ErrInvalidMAC)

	req.Key = []byte{1}
	assert.ErrorIs(t, req.Verify(), bboard.ErrInvalidKey)
}

func TestPostRequest(t *testing.T) {
	pub, priv := genKeys(t)
	req, err := NewPostRequest(priv, pub.String(), 1, "hello")
	require.NoError(t, err)
	require.NoError(t, req.Verify(MethodPost))
	assert.ErrorIs(t, req.Verify(MethodPostGeneral), bboard.ErrInvalidBoard)
	assert.ErrorIs(t, req.Verify(MethodRead), bboard.ErrInvalidRequest)

	a := req.Announcement()
	require.NoError(t, a.Validate())
	assert.Equal(t, pub.String(), a.Board)

	general, err := NewPostRequest(priv, board.GeneralID, 1, "hello")
	require.NoError(t, err)
	require.NoError(t, general.Verify(MethodPostGeneral))

	general.Content = "tampered"
	assert.ErrorIs(t, general.Verify(MethodPostGeneral), bboard.ErrInvalidMAC)
}

func TestWriteIDIsStable(t *testing.T) {
	pub, priv := genKeys(t)
	req, err := NewPostRequest(priv, pub.String(), 1, "hello")
	require.NoError(t, err)
	again, err := NewPostRequest(priv, pub.String(), 1, "hello")
	require.NoError(t, err)
	other, err := NewPostRequest(priv, pub.String(), 2, "hello")
	require.NoError(t, err)

	assert.Equal(t, NewPost(MethodPost, req).ID(), NewPost(MethodPost, again).ID())
	assert.NotEqual(t, NewPost(MethodPost, req).ID(), NewPost(MethodPost, other).ID())

	bad := Write{Method: MethodRead}
	assert.ErrorIs(t, bad.Verify(), bboard.ErrInvalidRequest)
	bad = Write{Method: MethodPost}
	assert.ErrorIs(t, bad.Verify(), bboard.ErrInvalidRequest)
}

func TestPeerMessage(t *testing.T) {
	_, priv := genKeys(t)
	signer, err := local.NewSigner(priv)
	require.NoError(t, err)

	_, clientPriv := genKeys(t)
	req, err := NewRegisterRequest(clientPriv)
	require.NoError(t, err)

	msg, err := NewPeerMessage(MethodEcho, NewRegister(req), 2, signer)
	require.NoError(t, err)
	assert.True(t, signer.PubKey().VerifySignature(crypto.Digest(msg.Canonical()), msg.MAC))

	// the vote is bound to the sender
	msg.Sender = 3
	assert.False(t, signer.PubKey().VerifySignature(crypto.Digest(msg.Canonical()), msg.MAC))

	_, err = NewPeerMessage(MethodPost, NewRegister(req), 2, signer)
	assert.ErrorIs(t, err, bboard.ErrInvalidRequest)
}

func TestResponse(t *testing.T) {
	_, priv := genKeys(t)
	signer, err := local.NewSigner(priv)
	require.NoError(t, err)

	fp := []byte("fingerprint")
	ok, err := NewResponse(1, fp, []byte("payload"), nil, signer)
	require.NoError(t, err)
	assert.Equal(t, codes.OK, ok.Code)
	require.NoError(t, ok.Err())

	failed, err := NewResponse(1, fp, []byte("payload"), errors.Join(bboard.ErrInvalidSequence), signer)
	require.NoError(t, err)
	assert.Equal(t, codes.InvalidArgument, failed.Code)
	assert.Empty(t, failed.Payload)
	assert.ErrorIs(t, failed.Err(), bboard.ErrInvalidSequence)

	other, err := NewResponse(2, fp, []byte("payload"), nil, signer)
	require.NoError(t, err)
	assert.Equal(t, ok.Class(), other.Class())
	assert.NotEqual(t, ok.Class(), failed.Class())

	env, err := ok.Envelope()
	require.NoError(t, err)
	decoded, err := DecodeResponse(env)
	require.NoError(t, err)
	assert.Equal(t, ok, decoded)

	_, err = DecodeResponse(Envelope{Method: MethodPost})
	assert.Error(t, err)
}

func genKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	pub, priv, err := ed25519.GenKeys()
	require.NoError(t, err)
	return pub, priv
}
