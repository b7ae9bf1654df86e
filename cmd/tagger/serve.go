package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/storm-track-tagger/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-track-tagger/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/storm-track-tagger/internal/adapter/redis"
	"github.com/couchcryptid/storm-track-tagger/internal/adapter/trackfile"
	"github.com/couchcryptid/storm-track-tagger/internal/observability"
	"github.com/couchcryptid/storm-track-tagger/internal/pipeline"
)

// memoryStatusEntries bounds the in-process status store used without Redis.
const memoryStatusEntries = 10000

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume tagging jobs from Kafka",
	Long: "serve runs the tagging service: job requests are read from the source topic,\n" +
		"tagged and their results published to the sink topic. Health, metrics and job\n" +
		"status are served over HTTP.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		metrics := observability.NewMetrics()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var status pipeline.StatusStore
		if cfg.RedisAddr != "" {
			client, err := redisadapter.Dial(ctx, cfg.RedisAddr)
			if err != nil {
				return err
			}
			store := redisadapter.NewStatusStore(client, cfg.RedisStatusTTL)
			defer store.Close()
			status = store
			logger.Info("redis job status enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisStatusTTL)
		} else {
			status = pipeline.NewMemoryStatusStore(memoryStatusEntries)
			logger.Info("redis job status disabled, keeping status in memory")
		}

		tagger := cfg.Tagger()
		tracks := trackfile.NewCachedLoader(trackfile.FileLoader{}, cfg.TrackCacheSize, metrics)
		runner := pipeline.NewRunner(tracks, openGrid(tagger.Coordinates), runnerConfig(cfg, tagger), status, metrics, logger)

		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(runner, logger)

		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

		srv := httpadapter.NewServer(cfg.HTTPAddr, p, status, logger)

		// Start HTTP server.
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		// Start tagging pipeline.
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("pipeline did not stop before shutdown timeout")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
