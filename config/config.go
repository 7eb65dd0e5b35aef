// Package config loads the runtime configuration of replicas and clients.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/viper"

	"github.com/iykyk-syn/bboard/crypto"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/quorum"
)

const (
	envPrefix = "BBOARD"

	defaultListen      = "/ip4/0.0.0.0/udp/10000/quic-v1"
	defaultHTTPAddress = "127.0.0.1:8080"
	defaultLogLevel    = "info"
	defaultAgreement   = AgreementBRB
	defaultBroadcast   = BroadcastMulticast
	defaultStore       = StoreFile
	defaultStorePath   = "bboard.log"
	defaultTimeout     = time.Second * 10
	defaultAttempts    = 5
)

// Agreement strategies.
const (
	AgreementBRB   = "brb"
	AgreementLocal = "local"
)

// Vote broadcast transports.
const (
	BroadcastMulticast = "multicast"
	BroadcastGossip    = "gossip"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Replica describes a member of the static replica set.
type Replica struct {
	Key  string `mapstructure:"key"`
	Addr string `mapstructure:"addr"`
}

// Config captures the runtime configuration. A client uses Replicas, KeyFile, Timeout and
// Attempts only.
type Config struct {
	Index    int
	KeyFile  string
	Replicas []Replica

	Listen    []string
	Bootstrap string
	Agreement string
	Broadcast string

	StoreKind     string
	StorePath     string
	StoreCompress bool

	HTTPAddress string
	LogLevel    string

	Timeout  time.Duration
	Attempts int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("replica.index", 0)
	v.SetDefault("replica.listen", []string{defaultListen})
	v.SetDefault("replica.agreement", defaultAgreement)
	v.SetDefault("replica.broadcast", defaultBroadcast)
	v.SetDefault("store.kind", defaultStore)
	v.SetDefault("store.path", defaultStorePath)
	v.SetDefault("store.compress", false)
	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("client.timeout", defaultTimeout)
	v.SetDefault("client.attempts", defaultAttempts)
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Index:         v.GetInt("replica.index"),
		KeyFile:       v.GetString("key.file"),
		Listen:        v.GetStringSlice("replica.listen"),
		Bootstrap:     v.GetString("replica.bootstrap"),
		Agreement:     v.GetString("replica.agreement"),
		Broadcast:     v.GetString("replica.broadcast"),
		StoreKind:     v.GetString("store.kind"),
		StorePath:     v.GetString("store.path"),
		StoreCompress: v.GetBool("store.compress"),
		HTTPAddress:   v.GetString("http.address"),
		LogLevel:      v.GetString("log.level"),
		Timeout:       v.GetDuration("client.timeout"),
		Attempts:      v.GetInt("client.attempts"),
	}
	if err := v.UnmarshalKey("replicas", &cfg.Replicas); err != nil {
		return Config{}, fmt.Errorf("replicas: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.KeyFile) == "" {
		return fmt.Errorf("key.file is required")
	}
	if len(c.Replicas) == 0 {
		return fmt.Errorf("replicas are required")
	}
	for i, r := range c.Replicas {
		if _, err := ed25519.HexToPubKey(r.Key); err != nil {
			return fmt.Errorf("replicas[%d].key: %w", i, err)
		}
		if _, err := multiaddr.NewMultiaddr(r.Addr); err != nil {
			return fmt.Errorf("replicas[%d].addr: %w", i, err)
		}
	}
	if c.Index < 0 || c.Index >= len(c.Replicas) {
		return fmt.Errorf("replica.index %d is out of %d replicas", c.Index, len(c.Replicas))
	}
	for _, addr := range c.Listen {
		if _, err := multiaddr.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("replica.listen: %w", err)
		}
	}

	switch c.Agreement {
	case AgreementBRB, AgreementLocal:
	default:
		return fmt.Errorf("replica.agreement must be %s or %s", AgreementBRB, AgreementLocal)
	}
	switch c.Broadcast {
	case BroadcastMulticast, BroadcastGossip:
	default:
		return fmt.Errorf("replica.broadcast must be %s or %s", BroadcastMulticast, BroadcastGossip)
	}
	switch c.StoreKind {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("store.path is required")
		}
	default:
		return fmt.Errorf("store.kind must be one of %s, %s, %s", StoreMemory, StoreFile, StoreSQLite)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive")
	}
	if c.Attempts <= 0 {
		return fmt.Errorf("client.attempts must be positive")
	}
	return nil
}

// Set builds the replica set out of the configured keys.
func (c Config) Set() (*quorum.Set, error) {
	keys := make([]crypto.PubKey, len(c.Replicas))
	for i, r := range c.Replicas {
		key, err := ed25519.HexToPubKey(r.Key)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return quorum.NewSet(keys)
}

// Addrs parses the addresses of the replicas.
func (c Config) Addrs() ([]multiaddr.Multiaddr, error) {
	addrs := make([]multiaddr.Multiaddr, len(c.Replicas))
	for i, r := range c.Replicas {
		addr, err := multiaddr.NewMultiaddr(r.Addr)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// ReadKey reads the private key stored hex encoded in KeyFile.
func (c Config) ReadKey() (ed25519.PrivateKey, error) {
	return ReadKey(c.KeyFile)
}

// ReadKey reads a hex encoded private key or seed from the file.
func ReadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	return ed25519.BytesToPrivKey(raw)
}

// WriteKey stores the seed of the key hex encoded, readable by the owner only.
func WriteKey(path string, key ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Seed())+"\n"), 0o600)
}
