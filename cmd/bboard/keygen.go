package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for a replica or a user and print its public half",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("key.file")
			if path == "" {
				return fmt.Errorf("--key-file is required")
			}

			pub, priv, err := ed25519.GenKeys()
			if err != nil {
				return err
			}
			if err = config.WriteKey(path, priv); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), pub.String())
			return nil
		},
	}
}
