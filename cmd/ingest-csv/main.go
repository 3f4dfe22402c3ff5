// The ingest-csv tool bulk-imports responses from a CSV file of (text, tag)
// rows into a conversation, optionally enqueueing a full analysis run.
//
// Usage:
//
//	ingest-csv -file feedback.csv -conversation <uuid> [-enqueue] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/hively/engine/internal/config"
	"github.com/hively/engine/internal/ingest"
	"github.com/hively/engine/internal/jobs"
	"github.com/hively/engine/internal/observability"
	"github.com/hively/engine/internal/repository"
	"github.com/hively/engine/pkg/database"
)

func main() {
	filePath := flag.String("file", "", "path to the CSV file (required)")
	conversationFlag := flag.String("conversation", "", "conversation UUID (required)")
	enqueue := flag.Bool("enqueue", false, "enqueue a full analysis run after import")
	dryRun := flag.Bool("dry-run", false, "parse and report without writing")
	flag.Parse()

	if *filePath == "" || *conversationFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	conversationID, err := uuid.Parse(*conversationFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid conversation id: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogging(cfg.LogLevel)

	if err := run(context.Background(), cfg, *filePath, conversationID, *enqueue, *dryRun); err != nil {
		slog.Error("Ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	cfg *config.Config,
	filePath string,
	conversationID uuid.UUID,
	enqueue, dryRun bool,
) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	rows, stats, err := ingest.ParseCSV(f)
	if err != nil {
		return err
	}

	slog.Info("Parsed CSV",
		"total_rows", stats.TotalRows,
		"parsed", stats.Parsed,
		"skipped_invalid", stats.SkippedInvalid,
		"normalized_tags", stats.NormalizedTags,
	)

	if dryRun {
		slog.Info("Dry run, nothing written")
		return nil
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithPGVector())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	responsesRepo := repository.NewResponsesRepository(db)
	if err := responsesRepo.InsertBatch(ctx, conversationID, rows); err != nil {
		return err
	}

	slog.Info("Inserted responses", "count", len(rows), "conversation_id", conversationID)

	if !enqueue {
		return nil
	}

	// Insert-only River client; no workers run in this process.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		return fmt.Errorf("create job client: %w", err)
	}

	if err := jobs.NewRiverInserter(riverClient).EnqueueFullAnalysis(ctx, conversationID); err != nil {
		return fmt.Errorf("enqueue full analysis: %w", err)
	}

	slog.Info("Enqueued full analysis", "conversation_id", conversationID)

	return nil
}
