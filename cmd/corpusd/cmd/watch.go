package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/supervisor"
	"github.com/corpusd/corpusd/internal/syncer"
	"github.com/corpusd/corpusd/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the corpus and keep index and service in lockstep",
		Long: `Watch runs the full supervision loop: an initial sync starts the
answering service, then every corpus change triggers a stop/resync/restart
cycle. Bursts of file events within the debounce window collapse into a
single cycle. If a sync pass fails, the service stays down until the next
corpus change succeeds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer loggingCleanup()

			if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
				return fmt.Errorf("create corpus directory: %w", err)
			}

			command := cfg.ServerCommand
			if len(command) == 0 {
				self, err := os.Executable()
				if err != nil {
					return fmt.Errorf("resolve own binary: %w", err)
				}
				command = []string{self, "serve", "--config", configPath}
			}

			w, err := watcher.New(cfg.DataPath, watcher.Options{
				DebounceWindow: cfg.DebounceDuration(),
				Logger:         log,
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()

			sup, err := supervisor.New(command, &passRunner{cfg: cfg, log: log}, supervisor.Options{Logger: log})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.Run(ctx) })
			g.Go(func() error { return sup.Run(ctx, w.Requests()) })

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// passRunner opens the index for the duration of one sync pass only. The
// supervisor stops the service before syncing, so the index directory lock
// bounces cleanly between the pass and the spawned serve process.
type passRunner struct {
	cfg config.Config
	log *slog.Logger
}

var _ supervisor.Resyncer = (*passRunner)(nil)

func (p *passRunner) Sync(ctx context.Context) (syncer.Report, error) {
	return runSyncPass(ctx, p.cfg, p.log)
}
