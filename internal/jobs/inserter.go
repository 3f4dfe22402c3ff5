package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Inserter enqueues analysis jobs without exposing River to callers.
type Inserter interface {
	EnqueueFullAnalysis(ctx context.Context, conversationID uuid.UUID) error
	EnqueueIncrementalAnalysis(ctx context.Context, conversationID uuid.UUID) error
}

// RiverInserter implements Inserter on the River client.
type RiverInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverInserter creates a River-backed job inserter.
func NewRiverInserter(client *river.Client[pgx.Tx]) *RiverInserter {
	return &RiverInserter{client: client}
}

// EnqueueFullAnalysis enqueues a full analysis run for the conversation.
func (r *RiverInserter) EnqueueFullAnalysis(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.client.Insert(ctx, FullAnalysisArgs{ConversationID: conversationID}, analysisInsertOpts())
	return err
}

// EnqueueIncrementalAnalysis enqueues an incremental run for the conversation.
func (r *RiverInserter) EnqueueIncrementalAnalysis(ctx context.Context, conversationID uuid.UUID) error {
	_, err := r.client.Insert(ctx, IncrementalAnalysisArgs{ConversationID: conversationID}, analysisInsertOpts())
	return err
}

// analysisInsertOpts deduplicates by args so at most one job per conversation
// and kind is in flight at a time.
func analysisInsertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}
