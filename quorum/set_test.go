package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

func TestThresholds(t *testing.T) {
	cases := []struct {
		n, faults, quorum, amplification int
	}{
		{1, 0, 1, 1},
		{4, 1, 3, 2},
		{5, 1, 3, 2},
		{7, 2, 5, 3},
		{10, 3, 7, 4},
	}

	for _, tc := range cases {
		set, _ := newSet(t, tc.n)
		assert.Equal(t, tc.n, set.Len())
		assert.Equal(t, tc.faults, set.Faults(), "n=%d", tc.n)
		assert.Equal(t, tc.quorum, set.QuorumSize(), "n=%d", tc.n)
		assert.Equal(t, tc.amplification, set.Amplification(), "n=%d", tc.n)
	}
}

func TestSetLookup(t *testing.T) {
	set, privs := newSet(t, 4)

	r := set.Get(2)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Index)
	assert.True(t, r.PubKey.Equals(privs[2].PubKey().Bytes()))
	assert.Nil(t, set.Get(4))
	assert.Nil(t, set.Get(-1))

	mac, err := crypto.MAC([]byte("content"), privs[1])
	require.NoError(t, err)
	assert.True(t, set.Verify(1, []byte("content"), mac))
	assert.False(t, set.Verify(0, []byte("content"), mac))
	assert.False(t, set.Verify(7, []byte("content"), mac))
}

func TestSetRejectsRepeatedKeys(t *testing.T) {
	pub, _, err := ed25519.GenKeys()
	require.NoError(t, err)

	_, err = NewSet([]crypto.PubKey{pub, pub})
	assert.Error(t, err)
	_, err = NewSet(nil)
	assert.Error(t, err)
}

func TestTally(t *testing.T) {
	set, _ := newSet(t, 4)
	tally := NewTally(set)

	assert.True(t, tally.Add(0))
	assert.False(t, tally.Add(0))
	assert.False(t, tally.Add(9))
	assert.True(t, tally.Add(3))
	assert.True(t, tally.Has(3))
	assert.Equal(t, 2, tally.Len())
}

func newSet(t *testing.T, n int) (*Set, []ed25519.PrivateKey) {
	keys := make([]crypto.PubKey, n)
	privs := make([]ed25519.PrivateKey, n)
	for i := range n {
		pub, priv, err := ed25519.GenKeys()
		require.NoError(t, err)
		keys[i], privs[i] = pub, priv
	}
	set, err := NewSet(keys)
	require.NoError(t, err)
	return set, privs
}
