package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iykyk-syn/bboard/client"
	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/crypto/ed25519"
	"github.com/iykyk-syn/bboard/logging"
	"github.com/iykyk-syn/bboard/node"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to the bulletin board as the owner of --key-file",
	}

	defaults := config.NewViper()
	cmd.PersistentFlags().Duration("timeout", defaults.GetDuration("client.timeout"), "Timeout of a single operation")
	cmd.PersistentFlags().Int("attempts", defaults.GetInt("client.attempts"), "Sends of a request to a single replica")
	bindFlag(cmd, "client.timeout", "timeout")
	bindFlag(cmd, "client.attempts", "attempts")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "register",
			Short: "Register the user",
			Args:  cobra.NoArgs,
			RunE: withClient(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
				if err := c.Register(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, c.Board())
				return nil
			}),
		},
		newPostCmd("post", "Post on the personal board", false),
		newPostCmd("post-general", "Post on the general board", true),
		newReadCmd(),
		newReadGeneralCmd(),
	)
	return cmd
}

func newPostCmd(use, short string, general bool) *cobra.Command {
	var (
		seq  uint64
		refs []string
	)
	cmd := &cobra.Command{
		Use:   use + " <content>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.Client, out io.Writer, args []string) (err error) {
			post, next := c.Post, c.NextSequence
			if general {
				post, next = c.PostGeneral, c.NextGeneralSequence
			}

			if seq == 0 {
				if seq, err = next(ctx); err != nil {
					return err
				}
			}
			id, err := post(ctx, seq, args[0], refs...)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, id)
			return nil
		}),
	}
	cmd.Flags().Uint64Var(&seq, "seq", 0, "Sequence of the announcement, the next free one if 0")
	cmd.Flags().StringSliceVar(&refs, "ref", nil, "Ids of referenced announcements")
	return cmd
}

func newReadCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "read [key]",
		Short: "Read a personal board, the own one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: withClient(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			key := c.Key()
			if len(args) == 1 {
				var err error
				if key, err = ed25519.HexToPubKey(args[0]); err != nil {
					return err
				}
			}

			list, err := c.Read(ctx, key, count)
			if err != nil {
				return err
			}
			return printJSON(out, list)
		}),
	}
	cmd.Flags().Int64Var(&count, "count", 0, "Number of the latest announcements to read, all if 0")
	return cmd
}

func newReadGeneralCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "read-general",
		Short: "Read the general board",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *client.Client, out io.Writer, args []string) error {
			list, err := c.ReadGeneral(ctx, count)
			if err != nil {
				return err
			}
			return printJSON(out, list)
		}),
	}
	cmd.Flags().Int64Var(&count, "count", 0, "Number of the latest announcements to read, all if 0")
	return cmd
}

type clientFn func(ctx context.Context, c *client.Client, out io.Writer, args []string) error

func withClient(fn clientFn) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		logger, sync, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer sync()

		key, err := cfg.ReadKey()
		if err != nil {
			return err
		}

		h, err := node.NewHost(key, nil)
		if err != nil {
			return err
		}
		defer h.Close()

		c, err := node.NewClient(cfg, key, h, nil, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()
		return fn(ctx, c, cmd.OutOrStdout(), args)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
