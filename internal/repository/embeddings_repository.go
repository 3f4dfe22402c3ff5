package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hively/engine/internal/models"
)

// EmbeddingsRepository handles data access for the response_embeddings table.
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// UpsertBatch stores one embedding per response in batches. On conflict the
// embedding and updated_at are replaced (re-embedding a response).
// Uses halfvec storage (2 bytes per dimension); pgvector-go converts float32
// to float16 when encoding.
func (r *EmbeddingsRepository) UpsertBatch(ctx context.Context, embeddings []models.ResponseEmbedding, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	now := time.Now()

	for start := 0; start < len(embeddings); start += batchSize {
		end := start + batchSize
		if end > len(embeddings) {
			end = len(embeddings)
		}

		batch := &pgx.Batch{}
		for _, e := range embeddings[start:end] {
			batch.Queue(`
				INSERT INTO response_embeddings (response_id, embedding, created_at, updated_at)
				VALUES ($1, $2, $3, $3)
				ON CONFLICT (response_id)
				DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = $3`,
				e.ResponseID, pgvector.NewHalfVector(e.Embedding), now,
			)
		}

		results := r.db.SendBatch(ctx, batch)
		for _, e := range embeddings[start:end] {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("upsert embedding for response %s: %w", e.ResponseID, err)
			}
		}

		if err := results.Close(); err != nil {
			return fmt.Errorf("close embedding batch: %w", err)
		}
	}

	return nil
}

// ListByConversation returns the stored embedding for every response in the
// conversation, keyed by response id.
func (r *EmbeddingsRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID][]float32, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.response_id, e.embedding
		FROM response_embeddings e
		INNER JOIN responses resp ON resp.id = e.response_id
		WHERE resp.conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]float32)

	for rows.Next() {
		var (
			id  uuid.UUID
			vec pgvector.HalfVector
		)

		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}

		out[id] = vec.Slice()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	return out, nil
}
