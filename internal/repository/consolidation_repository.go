package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hively/engine/internal/models"
)

// ConsolidationRepository handles data access for consolidation_buckets.
type ConsolidationRepository struct {
	db *pgxpool.Pool
}

// NewConsolidationRepository creates a new consolidation repository.
func NewConsolidationRepository(db *pgxpool.Pool) *ConsolidationRepository {
	return &ConsolidationRepository{db: db}
}

// ReplaceAll atomically replaces the conversation's consolidation buckets.
func (r *ConsolidationRepository) ReplaceAll(ctx context.Context, conversationID uuid.UUID, buckets []models.ConsolidationBucket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace consolidation buckets: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`DELETE FROM consolidation_buckets WHERE conversation_id = $1`, conversationID,
	); err != nil {
		return fmt.Errorf("delete consolidation buckets: %w", err)
	}

	for _, bucket := range buckets {
		_, err := tx.Exec(ctx, `
			INSERT INTO consolidation_buckets (id, conversation_id, cluster_index, statement, response_ids)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), conversationID, bucket.ClusterIndex, bucket.Statement, bucket.ResponseIDs,
		)
		if err != nil {
			return fmt.Errorf("insert consolidation bucket for cluster %d: %w", bucket.ClusterIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit consolidation buckets: %w", err)
	}

	return nil
}
