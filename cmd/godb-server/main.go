// Command godb-server runs the TCP server, grounded on
// leftmike-maho.v1's mahoCmd/startCmd split: a persistent pre-run sets
// up logging, the root command's RunE opens the store and serves until
// interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jyafoo/godb/internal/config"
	"github.com/jyafoo/godb/internal/server"
)

func main() {
	cfg := config.Default()
	log := logrus.New()

	rootCmd := &cobra.Command{
		Use:   "godb-server",
		Short: "Run the godb database server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("godb-server: %w", err)
			}
			log.SetLevel(level)
			if cfg.LogStderr {
				log.SetOutput(os.Stderr)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, log)
		},
	}
	cfg.BindFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	entry := log.WithField("pid", os.Getpid())

	store, err := server.Open(cfg.DataDir, cfg.PageCacheCapacity, entry)
	if err != nil {
		return fmt.Errorf("godb-server: open store: %w", err)
	}
	defer store.Close()

	srv := server.New(store, cfg.WorkerPoolSize, entry)
	if err := srv.Listen(cfg.ListenAddr); err != nil {
		return fmt.Errorf("godb-server: listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	select {
	case err := <-serveErr:
		return err
	case <-sig:
		entry.Info("shutting down")
		return srv.Close()
	}
}
