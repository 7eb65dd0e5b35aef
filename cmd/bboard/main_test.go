package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/bboard/config"
)

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"keygen", "--key-file", path, "--config", ""})
	require.NoError(t, cmd.Execute())

	key, err := config.ReadKey(path)
	require.NoError(t, err)
	assert.Equal(t, key.Public().String(), strings.TrimSpace(out.String()))
}

func TestCommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
		if c.Name() == "client" {
			for _, sub := range c.Commands() {
				names = append(names, "client "+sub.Name())
			}
		}
	}
	assert.Subset(t, names, []string{
		"keygen", "replica", "client",
		"client register", "client post", "client post-general", "client read", "client read-general",
	})
}
