// The worker process runs the conversation analysis job queue: it consumes
// full and incremental analysis jobs from River, executes the pipelines, and
// serves Prometheus metrics plus a health endpoint.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/hively/engine/internal/config"
	"github.com/hively/engine/internal/jobs"
	"github.com/hively/engine/internal/observability"
	"github.com/hively/engine/internal/openai"
	"github.com/hively/engine/internal/repository"
	"github.com/hively/engine/internal/service"
	"github.com/hively/engine/internal/workers"
	"github.com/hively/engine/pkg/database"
)

const serviceName = "hively-engine"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	observability.SetupLogging(cfg.LogLevel)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithPGVector())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	meterShutdown, metricsHandler, analysisMetrics, err := observability.NewMeterProvider(serviceName)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithDimensions(cfg.EmbeddingDimensions),
		openai.WithRateLimit(cfg.EmbeddingRateLimit),
	)

	analysisService, err := service.NewAnalysisService(service.AnalysisDeps{
		Conversations: repository.NewConversationsRepository(db),
		Responses:     repository.NewResponsesRepository(db),
		EmbeddingRows: repository.NewEmbeddingsRepository(db),
		ClusterModels: repository.NewClusterModelsRepository(db),
		Themes:        repository.NewThemesRepository(db),
		Consolidation: repository.NewConsolidationRepository(db),
		Embedder:      openaiClient,
		ThemeGen:      openaiClient,
		Consolidator:  openaiClient,
		BatchSize:     cfg.PersistBatchSize,
		Metrics:       analysisMetrics,
	})
	if err != nil {
		slog.Error("Failed to initialize analysis service", "error", err)
		os.Exit(1)
	}

	riverClient, err := initRiver(ctx, db, cfg, analysisService)
	if err != nil {
		slog.Error("Failed to initialize River job queue", "error", err)
		os.Exit(1)
	}

	slog.Info("Analysis worker started",
		"workers", cfg.AnalysisWorkers,
		"max_attempts", cfg.AnalysisMaxAttempts,
		"embedding_rate_limit", cfg.EmbeddingRateLimit,
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", "port", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop River first so in-flight analysis runs finish before the process exits.
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River forced to shutdown", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Metrics server forced to shutdown", "error", err)
	}

	if err := meterShutdown.Shutdown(shutdownCtx); err != nil {
		slog.Error("Meter provider shutdown failed", "error", err)
	}

	slog.Info("Worker exited")
}

// initRiver registers the analysis workers and starts the River client.
func initRiver(
	ctx context.Context,
	db *pgxpool.Pool,
	cfg *config.Config,
	analysisService *service.AnalysisService,
) (*river.Client[pgx.Tx], error) {
	riverWorkers := river.NewWorkers()

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.AnalysisWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
		MaxAttempts:  cfg.AnalysisMaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	inserter := jobs.NewRiverInserter(riverClient)
	river.AddWorker(riverWorkers, workers.NewFullAnalysisWorker(analysisService))
	river.AddWorker(riverWorkers, workers.NewIncrementalAnalysisWorker(analysisService, inserter))

	if err := riverClient.Start(ctx); err != nil {
		return nil, err
	}

	return riverClient, nil
}
