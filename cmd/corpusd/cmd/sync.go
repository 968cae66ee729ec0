package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/corpus"
	"github.com/corpusd/corpusd/internal/embed"
	"github.com/corpusd/corpusd/internal/index"
	"github.com/corpusd/corpusd/internal/syncer"
)

// embedCacheSize bounds the query/chunk embedding LRU.
const embedCacheSize = 1024

func newSyncCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the index with the corpus directory once",
		Long: `Sync diffs the corpus directory against the index: removed documents are
purged, moved documents are repointed, and new documents are loaded, split,
and embedded. Re-running over an unchanged corpus writes nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer loggingCleanup()

			if reset {
				log.Info("clearing index", "dir", cfg.IndexPath)
				if err := index.Reset(cfg.IndexPath); err != nil {
					return fmt.Errorf("reset index: %w", err)
				}
			}

			report, err := runSyncPass(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}

			fmt.Printf("Scanned %d documents: %d added, %d removed, %d renamed, %d chunks written\n",
				report.Scanned, len(report.Added), len(report.Removed), len(report.Renamed), report.ChunksAdded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the index before synchronizing")
	return cmd
}

// runSyncPass opens the index, runs one reconciliation pass, and closes the
// index again so the directory lock is free for the answering service.
func runSyncPass(ctx context.Context, cfg config.Config, log *slog.Logger) (syncer.Report, error) {
	idx, err := index.Open(cfg.IndexPath, index.Options{Logger: log})
	if err != nil {
		return syncer.Report{}, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = idx.Close() }()

	embedder := embed.NewCachedEmbedder(embed.NewOllamaEmbedder(embed.OllamaConfig{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.Models.EmbeddingModel,
	}), embedCacheSize)

	writer := index.NewWriter(idx, embedder, index.WriterOptions{Logger: log})
	scanner := corpus.NewScanner(cfg.Extensions)
	s := syncer.New(cfg.DataPath, scanner, idx, writer, syncer.Options{Logger: log})

	return s.Sync(ctx)
}
