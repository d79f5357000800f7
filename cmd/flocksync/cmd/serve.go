package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brianly1003/flocksync/internal/app"
	"github.com/brianly1003/flocksync/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serveHost  string
	servePort  int
	serveStore string
	serveStdio bool
	serveNoAuth  bool
)

// serveCmd runs the tree server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a tree to sync clients",
	Long: `Serve a stored tree over HTTP and WebSocket JSON-RPC.

The tree lives in memory, in SQLite or in PostgreSQL depending on store.dsn.
Accounts are kept in the same database when it is SQL.

Examples:
  flocksync serve                                  # in-memory tree on 127.0.0.1:8787
  flocksync serve --store sqlite://flock.db        # persistent tree
  flocksync serve --store postgres://u:p@db/flock  # shared tree
  flocksync serve --stdio                          # one client on stdin/stdout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default: 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: 8787)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "tree store DSN: memory:, sqlite://path, postgres://...")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve one JSON-RPC client on stdin/stdout instead of HTTP")
	serveCmd.Flags().BoolVar(&serveNoAuth, "no-auth", false, "allow reads and writes without signing in")
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServeFlags(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)
	level := new(slog.LevelVar)
	logger := newRequestLogger(os.Stderr, cfg, level)
	watchLogLevel(loader, level)

	log.Info().
		Str("version", version).
		Bool("stdio", serveStdio).
		Msg("starting flocksync server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if serveStdio {
		err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	} else {
		err = srv.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("flocksync server stopped")
	return nil
}

func applyServeFlags(cfg *config.Config) {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveStore != "" {
		cfg.Store.DSN = serveStore
	}
	if serveNoAuth {
		cfg.Server.AuthRequired = false
	}
}
