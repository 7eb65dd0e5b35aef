package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iykyk-syn/bboard/config"
	"github.com/iykyk-syn/bboard/logging"
	"github.com/iykyk-syn/bboard/node"
)

func newReplicaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replica",
		Short: "Run a replica of the bulletin board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplica(cmd.Context())
		},
	}

	defaults := config.NewViper()
	cmd.PersistentFlags().Int("index", defaults.GetInt("replica.index"), "Index of the replica in the replica set")
	cmd.PersistentFlags().StringSlice("listen", defaults.GetStringSlice("replica.listen"), "Multiaddrs to listen on")
	cmd.PersistentFlags().String("bootstrap", defaults.GetString("replica.bootstrap"), "Multiaddr of a node to learn peers from")
	cmd.PersistentFlags().String("agreement", defaults.GetString("replica.agreement"), "Agreement strategy (brb, local)")
	cmd.PersistentFlags().String("broadcast", defaults.GetString("replica.broadcast"), "Vote transport (multicast, gossip)")
	cmd.PersistentFlags().String("store", defaults.GetString("store.kind"), "Store kind (memory, file, sqlite)")
	cmd.PersistentFlags().String("store-path", defaults.GetString("store.path"), "Path of the file or sqlite store")
	cmd.PersistentFlags().Bool("store-compress", defaults.GetBool("store.compress"), "Compress file store records with zstd")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP status listen address, empty disables it")

	bindFlag(cmd, "replica.index", "index")
	bindFlag(cmd, "replica.listen", "listen")
	bindFlag(cmd, "replica.bootstrap", "bootstrap")
	bindFlag(cmd, "replica.agreement", "agreement")
	bindFlag(cmd, "replica.broadcast", "broadcast")
	bindFlag(cmd, "store.kind", "store")
	bindFlag(cmd, "store.path", "store-path")
	bindFlag(cmd, "store.compress", "store-compress")
	bindFlag(cmd, "http.address", "http-address")
	return cmd
}

func runReplica(ctx context.Context) error {
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

	h, err := node.NewHost(key, cfg.Listen)
	if err != nil {
		return err
	}
	defer h.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.NewReplica(signalCtx, cfg, key, h, logger)
	if err != nil {
		return err
	}
	if err = n.Start(signalCtx); err != nil {
		return errors.Join(err, n.Stop(context.Background()))
	}

	<-signalCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Stop(shutdownCtx)
}
