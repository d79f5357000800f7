package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/brianly1003/flocksync/internal/remote"
	"github.com/brianly1003/flocksync/internal/stats"
	"github.com/spf13/cobra"
)

var (
	statsRemote  string
	statsToken   string
	statsFlock   string
	statsChicken string
	statsRange   string
)

// statsCmd prints egg statistics for a flock.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print egg statistics for a flock",
	Long: `Print egg statistics for a flock, or for one hen in it, as JSON.

The range is "allTime" or a month in YYYY-MM form.

Examples:
  flocksync stats --flock f1
  flocksync stats --flock f1 --range 2024-03
  flocksync stats --flock f1 --chicken c1 --remote sqlite://flock.db`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsRemote, "remote", "", "remote DSN (default: remote.dsn from config)")
	statsCmd.Flags().StringVar(&statsToken, "token", "", "session token for websocket remotes")
	statsCmd.Flags().StringVar(&statsFlock, "flock", "", "flock ID")
	statsCmd.Flags().StringVar(&statsChicken, "chicken", "", "only count eggs laid by this hen")
	statsCmd.Flags().StringVar(&statsRange, "range", stats.AllTime, `"allTime" or YYYY-MM`)
	_ = statsCmd.MarkFlagRequired("flock")
}

func runStats(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if statsRemote != "" {
		cfg.Remote.DSN = statsRemote
	}
	setupLogging(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := remote.Open(ctx, cfg.Remote.DSN)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", remote.Redact(cfg.Remote.DSN), err)
	}
	defer func() { _ = store.Close() }()

	if statsToken != "" {
		r, ok := store.(interface {
			Resume(ctx context.Context, token string) (authn.Token, error)
		})
		if !ok {
			return fmt.Errorf("--token needs a websocket remote")
		}
		if _, err := r.Resume(ctx, statsToken); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
	}

	return printStats(ctx, cmd.OutOrStdout(), store, statsFlock, statsChicken, statsRange, time.Now())
}

func printStats(ctx context.Context, w io.Writer, store ports.RemoteStore, flockID, chickenID, rng string, now time.Time) error {
	raw, err := store.Get(ctx, paths.Collection(domain.EntityEggs, flockID))
	if err != nil {
		return err
	}
	collection, _ := raw.(map[string]any)
	eggs := stats.Decode(collection)
	if chickenID != "" {
		for id, egg := range eggs {
			if egg.ChickenID != chickenID {
				delete(eggs, id)
			}
		}
	}

	result, err := stats.Calculate(eggs, rng, now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
