package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/planzy/server/internal/embedding"
	"github.com/planzy/server/internal/jobs"
	"github.com/planzy/server/internal/metrics"
	"github.com/planzy/server/internal/telemetry"
)

var workerMetricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduled pipeline",
	Long: `Starts the River job workers and the periodic schedule: a full scrape
daily at 01:00 UTC, a venue refresh sweep daily at 03:00 UTC, and an
embedding sweep every hour (plus once on startup). Deferred ingest
chunks enqueued by the scrape job are worked here too.

Prometheus metrics are served on --metrics-addr under /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		metrics.Init(Version, GitCommit, BuildDate)

		shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("worker: tracing shutdown")
			}
		}()

		pool, repo, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		dbCollector := metrics.NewDBCollector(pool)
		go dbCollector.Start(ctx, 15*time.Second)
		defer dbCollector.Stop()

		adapters, err := buildAdapters(cfg, logger)
		if err != nil {
			return err
		}
		orchestrator := buildOrchestrator(cfg, adapters, repo.ScrapeRuns(), logger)
		venues := buildPlacesService(cfg, repo, logger)
		integrator := buildIntegrator(cfg, repo, venues, logger)

		var embedder *embedding.Worker
		if cfg.Embedding.APIKey != "" {
			provider, err := buildEmbeddingClient(cfg)
			if err != nil {
				return err
			}
			embedder = buildEmbeddingWorker(cfg, repo, provider, logger)
		} else {
			logger.Warn().Msg("worker: OPENAI_API_KEY is empty; embedding sweeps disabled")
		}

		workers := jobs.NewWorkers(jobs.WorkerDeps{
			Orchestrator: orchestrator,
			Integrator:   integrator,
			Embedding:    embedder,
			Places:       venues,
			Logger:       logger,
		})

		// River wants slog for its internals; domain logging stays zerolog.
		riverLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		client, err := jobs.NewClient(pool, workers, riverLogger, jobs.NewPeriodicJobs())
		if err != nil {
			return fmt.Errorf("create job client: %w", err)
		}

		metricsSrv := &http.Server{
			Addr:              workerMetricsAddr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("worker: metrics server failed")
			}
		}()
		logger.Info().Str("addr", workerMetricsAddr).Msg("worker: metrics server listening")

		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("start job workers: %w", err)
		}
		logger.Info().Msg("worker: job workers started")

		<-ctx.Done()
		logger.Info().Msg("worker: shutting down")

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("worker: job workers shutdown error")
		}
		if err := metricsSrv.Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msg("worker: metrics server shutdown error")
		}
		return nil
	},
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return metrics.HTTPMiddleware(mux)
}

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "address for the Prometheus metrics endpoint")
}
