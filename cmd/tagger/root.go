package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-track-tagger/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-track-tagger/internal/config"
	"github.com/couchcryptid/storm-track-tagger/internal/domain"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "storm-tagger",
	Short: "Storm track grid cell tagger",
	Long: "storm-tagger assigns storm identities to flagged cells of a gridded detection mask\n" +
		"using storm center tracks, either for single files, batches or as a Kafka service.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, text); overrides LOG_FORMAT")

	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies the global flags.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, observability.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

// openGrid opens masks from disk with the tagger's coordinate candidates.
func openGrid(coords []domain.CoordinateNames) pipeline.GridOpener {
	return func(path, binaryVar, tagVar string) (pipeline.GridDataset, error) {
		ds, err := netcdf.Open(path, netcdf.Options{
			BinaryVar:   binaryVar,
			TagVar:      tagVar,
			Coordinates: coords,
		})
		if err != nil {
			return nil, err
		}
		return ds, nil
	}
}

func runnerConfig(cfg *config.Config, tagger *domain.Tagger) pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		Tagger:    *tagger,
		BinaryVar: cfg.BinaryVar,
		TagVar:    cfg.TagVar,
	}
}
