// Package cmd provides the CLI commands for corpusd.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/logging"
	"github.com/corpusd/corpusd/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the corpusd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpusd",
		Short: "Corpus-synchronized question answering over local documents",
		Long: `corpusd keeps a vector index in lockstep with a directory of documents
and serves retrieval-augmented answers over HTTP.

'corpusd sync' reconciles the index with the corpus once.
'corpusd serve' runs the answering API against the current index.
'corpusd watch' supervises both: it watches the corpus, resyncs on change,
and restarts the answering service after each successful pass.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("corpusd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig reads the config file, resolves paths, and installs the logger
// as the process default.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.AbsPaths(); err != nil {
		return config.Config{}, nil, err
	}

	level := cfg.LogLevel
	if debugMode {
		level = "debug"
	}
	log, cleanup, err := logging.Setup(logging.Config{Level: level, WriteToStderr: true})
	if err != nil {
		return config.Config{}, nil, err
	}
	loggingCleanup = cleanup
	slog.SetDefault(log)
	return cfg, log, nil
}
