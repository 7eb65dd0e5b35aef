package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	keys := make([]ed25519.PublicKey, 4)
	for i := range keys {
		pub, _, err := ed25519.GenKeys()
		require.NoError(t, err)
		keys[i] = pub
	}

	path := filepath.Join(dir, "bboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
key:
  file: /etc/bboard/key
replica:
  index: 2
  broadcast: gossip
replicas:
  - key: `+keys[0].String()+`
    addr: /ip4/10.0.0.1/udp/10000/quic-v1
  - key: `+keys[1].String()+`
    addr: /ip4/10.0.0.2/udp/10000/quic-v1
  - key: `+keys[2].String()+`
    addr: /ip4/10.0.0.3/udp/10000/quic-v1
  - key: `+keys[3].String()+`
    addr: /ip4/10.0.0.4/udp/10000/quic-v1
`), 0o600))

	t.Setenv("BBOARD_STORE_KIND", "sqlite")
	v := NewViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Index)
	assert.Equal(t, BroadcastGossip, cfg.Broadcast)
	assert.Equal(t, AgreementBRB, cfg.Agreement)
	assert.Equal(t, StoreSQLite, cfg.StoreKind)
	assert.Equal(t, defaultStorePath, cfg.StorePath)
	assert.Equal(t, time.Second*10, cfg.Timeout)
	require.Len(t, cfg.Replicas, 4)

	set, err := cfg.Set()
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.True(t, set.Get(1).PubKey.Equals(keys[1]))

	addrs, err := cfg.Addrs()
	require.NoError(t, err)
	assert.Equal(t, "/ip4/10.0.0.3/udp/10000/quic-v1", addrs[2].String())
}

func TestValidate(t *testing.T) {
	pub, _, err := ed25519.GenKeys()
	require.NoError(t, err)

	valid := func() Config {
		return Config{
			KeyFile:   "key",
			Replicas:  []Replica{{Key: pub.String(), Addr: "/ip4/127.0.0.1/tcp/4001"}},
			Listen:    []string{defaultListen},
			Agreement: AgreementLocal,
			Broadcast: BroadcastMulticast,
			StoreKind: StoreMemory,
			Timeout:   time.Second,
			Attempts:  1,
		}
	}
	require.NoError(t, valid().validate())

	tests := map[string]func(*Config){
		"no key file":   func(c *Config) { c.KeyFile = " " },
		"no replicas":   func(c *Config) { c.Replicas = nil },
		"bad key":       func(c *Config) { c.Replicas[0].Key = "00" },
		"bad addr":      func(c *Config) { c.Replicas[0].Addr = "localhost:4001" },
		"index":         func(c *Config) { c.Index = 1 },
		"listen":        func(c *Config) { c.Listen = []string{"nowhere"} },
		"agreement":     func(c *Config) { c.Agreement = "paxos" },
		"broadcast":     func(c *Config) { c.Broadcast = "carrier pigeon" },
		"store":         func(c *Config) { c.StoreKind = "tape" },
		"no store path": func(c *Config) { c.StoreKind, c.StorePath = StoreFile, "" },
		"timeout":       func(c *Config) { c.Timeout = 0 },
		"attempts":      func(c *Config) { c.Attempts = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	_, priv, err := ed25519.GenKeys()
	require.NoError(t, err)

	require.NoError(t, WriteKey(path, priv))
	read, err := ReadKey(path)
	require.NoError(t, err)
	assert.True(t, priv.Equals(read))

	require.NoError(t, os.WriteFile(path, []byte("not hex"), 0o600))
	_, err = ReadKey(path)
	assert.Error(t, err)
}
