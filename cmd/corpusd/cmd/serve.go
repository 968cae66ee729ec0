package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/embed"
	"github.com/corpusd/corpusd/internal/index"
	"github.com/corpusd/corpusd/internal/llm"
	"github.com/corpusd/corpusd/internal/qlog"
	"github.com/corpusd/corpusd/internal/server"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the question-answering HTTP API",
		Long: `Serve opens the index read-write and answers POST /query requests by
retrieving the nearest chunks and prompting the language model. File
management endpoints under /files mutate the corpus directory; under
'corpusd watch' those mutations trigger a resync and restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer loggingCleanup()

			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			idx, err := index.Open(cfg.IndexPath, index.Options{Logger: log})
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer func() { _ = idx.Close() }()

			embedder := embed.NewCachedEmbedder(embed.NewOllamaEmbedder(embed.OllamaConfig{
				BaseURL: cfg.OllamaBaseURL,
				Model:   cfg.Models.EmbeddingModel,
			}), embedCacheSize)
			generator := llm.NewOllamaGenerator(llm.OllamaConfig{
				BaseURL: cfg.OllamaBaseURL,
				Model:   cfg.Models.LlamaModel,
			})
			queryLog := qlog.New(cfg.LogFile)

			srv := server.New(cfg.DataPath, idx, embedder, generator, queryLog, server.Options{Logger: log})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = srv.ListenAndServe(ctx, cfg.ListenAddr)
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Bind address (overrides listen_addr from config)")
	return cmd
}
