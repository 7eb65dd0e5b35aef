package local

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

func TestSigner(t *testing.T) {
	pub, priv, err := ed25519.GenKeys()
	require.NoError(t, err)

	signer, err := NewSigner(priv)
	require.NoError(t, err)
	assert.EqualValues(t, pub, signer.ID())

	sig, err := signer.Sign([]byte("data"))
	require.NoError(t, err)
	assert.EqualValues(t, pub, sig.Signer)
	assert.True(t, crypto.VerifyMAC([]byte("data"), sig.Body, pub))
	assert.False(t, crypto.VerifyMAC([]byte("other"), sig.Body, pub))

	otherPub, _, err := ed25519.GenKeys()
	require.NoError(t, err)
	assert.False(t, crypto.VerifyMAC([]byte("data"), sig.Body, otherPub))

	_, err = NewSigner(nil)
	assert.Error(t, err)
}
