// Package workers provides the River workers that drive conversation analysis.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/hively/engine/internal/apperrors"
	"github.com/hively/engine/internal/jobs"
)

// analysisRunner is the minimal service surface the workers need.
type analysisRunner interface {
	RunFull(ctx context.Context, conversationID uuid.UUID) error
	RunIncremental(ctx context.Context, conversationID uuid.UUID) error
}

const (
	fullAnalysisTimeout        = 10 * time.Minute
	incrementalAnalysisTimeout = 3 * time.Minute
)

// FullAnalysisWorker runs the from-scratch pipeline for one conversation.
type FullAnalysisWorker struct {
	river.WorkerDefaults[jobs.FullAnalysisArgs]

	service analysisRunner
}

// NewFullAnalysisWorker creates a worker backed by the analysis service.
func NewFullAnalysisWorker(service analysisRunner) *FullAnalysisWorker {
	return &FullAnalysisWorker{service: service}
}

// Timeout bounds a single full run. Large conversations dominate on the
// embedding calls, which are already chunked and rate limited.
func (w *FullAnalysisWorker) Timeout(*river.Job[jobs.FullAnalysisArgs]) time.Duration {
	return fullAnalysisTimeout
}

// Work runs the full pipeline. The service records failures on the
// conversation itself; returning the error lets River retry.
func (w *FullAnalysisWorker) Work(ctx context.Context, job *river.Job[jobs.FullAnalysisArgs]) error {
	args := job.Args

	err := w.service.RunFull(ctx, args.ConversationID)
	if err == nil {
		return nil
	}

	if errors.Is(err, apperrors.ErrNotFound) {
		// Conversation deleted between enqueue and run; retrying cannot help.
		slog.Warn("full analysis skipped, conversation missing",
			"conversation_id", args.ConversationID,
		)

		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		slog.Error("full analysis failed (final attempt)",
			"conversation_id", args.ConversationID,
			"error", err,
		)
	}

	return err
}

// IncrementalAnalysisWorker folds new responses into an existing structure.
// When the conversation has no cluster models yet it falls back to enqueueing
// a full run instead of retrying a job that cannot succeed.
type IncrementalAnalysisWorker struct {
	river.WorkerDefaults[jobs.IncrementalAnalysisArgs]

	service  analysisRunner
	inserter jobs.Inserter
}

// NewIncrementalAnalysisWorker creates a worker backed by the analysis service.
// inserter may be nil; the full-run fallback is then skipped.
func NewIncrementalAnalysisWorker(service analysisRunner, inserter jobs.Inserter) *IncrementalAnalysisWorker {
	return &IncrementalAnalysisWorker{service: service, inserter: inserter}
}

// Timeout bounds a single incremental run.
func (w *IncrementalAnalysisWorker) Timeout(*river.Job[jobs.IncrementalAnalysisArgs]) time.Duration {
	return incrementalAnalysisTimeout
}

// Work runs the incremental pipeline.
func (w *IncrementalAnalysisWorker) Work(ctx context.Context, job *river.Job[jobs.IncrementalAnalysisArgs]) error {
	args := job.Args

	err := w.service.RunIncremental(ctx, args.ConversationID)
	if err == nil {
		return nil
	}

	if errors.Is(err, apperrors.ErrNotFound) {
		slog.Warn("incremental analysis skipped, conversation missing",
			"conversation_id", args.ConversationID,
		)

		return nil
	}

	if errors.Is(err, apperrors.ErrInvalidState) {
		slog.Info("incremental analysis requires prior full run, enqueueing one",
			"conversation_id", args.ConversationID,
		)

		if w.inserter != nil {
			if enqueueErr := w.inserter.EnqueueFullAnalysis(ctx, args.ConversationID); enqueueErr != nil {
				return enqueueErr
			}
		}

		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		slog.Error("incremental analysis failed (final attempt)",
			"conversation_id", args.ConversationID,
			"error", err,
		)
	}

	return err
}
