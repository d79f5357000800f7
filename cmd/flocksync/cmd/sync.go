package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brianly1003/flocksync/internal/app"
	"github.com/brianly1003/flocksync/internal/config"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/events"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/hub"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	syncRemote   string
	syncToken    string
	syncOnly     []string
	syncExit     bool
	syncSnapshot bool
)

// syncCmd drives the sync core from stdin.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync core with JSON commands on stdin",
	Long: `Run the sync core against a remote tree.

Each stdin line is one JSON command, for example:
  {"command":"sign_in_requested","payload":{"email":"hen@example.com","password":"secret1"}}
  {"command":"listen_requested","payload":{"entity":"eggs","flock_id":"f1"}}

Every result is written to stdout as one JSON line.

Examples:
  flocksync sync --remote ws://127.0.0.1:8787/ws
  flocksync sync --remote sqlite://flock.db --only eggs,chickens
  flocksync sync --exit-on-eof --snapshot < commands.jsonl`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRemote, "remote", "", "remote DSN: memory:, sqlite://path, postgres://..., ws://host/ws")
	syncCmd.Flags().StringVar(&syncToken, "token", "", "resume a session with a saved token (websocket remotes)")
	syncCmd.Flags().StringSliceVar(&syncOnly, "only", nil, "only write results for these entities (userSettings, flocks, chickens, eggs)")
	syncCmd.Flags().BoolVar(&syncExit, "exit-on-eof", false, "stop once stdin is exhausted and every command has been handled")
	syncCmd.Flags().BoolVar(&syncSnapshot, "snapshot", false, "write the state container as JSON on exit")
}

func runSync(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if syncRemote != "" {
		cfg.Remote.DSN = syncRemote
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	only, err := parseEntities(syncOnly)
	if err != nil {
		return err
	}

	setupLogging(cfg)
	watchLogLevel(loader, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- application.Start(runCtx) }()

	select {
	case <-application.Ready():
	case err := <-errc:
		return fmt.Errorf("application error: %w", err)
	}

	out := cmd.OutOrStdout()
	application.Subscribe(resultWriter(out, only))
	application.Subscribe(hub.NewLogSubscriber("navigation", logNavigationReset))

	if syncToken != "" {
		if err := application.Resume(runCtx, syncToken); err != nil {
			log.Warn().Err(err).Msg("could not resume session")
		}
	}

	go func() {
		if err := feedCommands(runCtx, cmd.InOrStdin(), application); err != nil {
			log.Error().Err(err).Msg("reading commands failed")
		}
		if syncExit {
			if err := application.Flush(runCtx); err != nil {
				log.Warn().Err(err).Msg("flush failed")
			}
			cancel()
		}
	}()

	err = <-errc
	if syncSnapshot {
		enc := json.NewEncoder(out)
		if encErr := enc.Encode(application.Snapshot()); encErr != nil && err == nil {
			err = encErr
		}
	}
	if err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	log.Info().Msg("flocksync sync stopped")
	return nil
}

// commandSubmitter is the part of the application feedCommands drives.
type commandSubmitter interface {
	SubmitBytes(ctx context.Context, data []byte) error
}

// feedCommands submits one command per non-blank line of r. A command that
// fails to submit is logged and skipped.
func feedCommands(ctx context.Context, r io.Reader, sink commandSubmitter) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sink.SubmitBytes(ctx, []byte(line)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("command rejected")
		}
	}
	return scanner.Err()
}

func parseEntities(names []string) ([]domain.EntityType, error) {
	out := make([]domain.EntityType, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		e, err := domain.ParseEntityType(name)
		if err != nil {
			return nil, fmt.Errorf("--only: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func resultWriter(w io.Writer, only []domain.EntityType) ports.Subscriber {
	writer := hub.NewWriterSubscriber("stdout", w)
	if len(only) == 0 {
		return writer
	}
	return hub.NewFilteredSubscriber(writer, only...)
}

// logNavigationReset reports results that tell a client to leave flock
// scoped screens.
func logNavigationReset(event events.Event) {
	var flockID string
	switch e := event.(type) {
	case events.DeleteFlockFulfilled:
		if !e.ResetStack {
			return
		}
		flockID = e.FlockID
	case events.UnlinkFlockFulfilled:
		if !e.ResetStack {
			return
		}
		flockID = e.FlockID
	default:
		return
	}
	log.Info().Str("flock_id", flockID).Msg("current flock gone, navigation reset")
}
