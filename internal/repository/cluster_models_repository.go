package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hively/engine/internal/models"
)

// ClusterModelsRepository handles data access for the cluster_models table.
type ClusterModelsRepository struct {
	db *pgxpool.Pool
}

// NewClusterModelsRepository creates a new cluster models repository.
func NewClusterModelsRepository(db *pgxpool.Pool) *ClusterModelsRepository {
	return &ClusterModelsRepository{db: db}
}

// ReplaceAll atomically replaces the conversation's cluster model set. Full
// analysis rebuilds models wholesale; delete-and-insert in one transaction
// keeps re-runs idempotent.
func (r *ClusterModelsRepository) ReplaceAll(ctx context.Context, conversationID uuid.UUID, clusterModels []models.ClusterModel) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace cluster models: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`DELETE FROM cluster_models WHERE conversation_id = $1`, conversationID,
	); err != nil {
		return fmt.Errorf("delete cluster models: %w", err)
	}

	now := time.Now()

	for _, m := range clusterModels {
		_, err := tx.Exec(ctx, `
			INSERT INTO cluster_models
				(conversation_id, cluster_index, centroid, centroid_x, centroid_y, spread_radius, member_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			conversationID, m.ClusterIndex, pgvector.NewHalfVector(m.Centroid),
			m.CentroidX, m.CentroidY, m.SpreadRadius, m.MemberCount, now,
		)
		if err != nil {
			return fmt.Errorf("insert cluster model %d: %w", m.ClusterIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cluster models: %w", err)
	}

	return nil
}

// ListByConversation returns the conversation's cluster models ordered by index.
func (r *ClusterModelsRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.ClusterModel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT conversation_id, cluster_index, centroid, centroid_x, centroid_y,
		       spread_radius, member_count, created_at
		FROM cluster_models
		WHERE conversation_id = $1
		ORDER BY cluster_index`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cluster models: %w", err)
	}
	defer rows.Close()

	var out []models.ClusterModel

	for rows.Next() {
		var (
			m   models.ClusterModel
			vec pgvector.HalfVector
		)

		err := rows.Scan(
			&m.ConversationID, &m.ClusterIndex, &vec, &m.CentroidX, &m.CentroidY,
			&m.SpreadRadius, &m.MemberCount, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cluster model: %w", err)
		}

		m.Centroid = vec.Slice()
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cluster models: %w", err)
	}

	return out, nil
}

// AddMemberCounts bumps member_count per cluster index. The incremental path
// uses this for bookkeeping; centroids and radii are never rewritten here.
func (r *ClusterModelsRepository) AddMemberCounts(ctx context.Context, conversationID uuid.UUID, added map[int]int) error {
	for clusterIndex, n := range added {
		if n == 0 {
			continue
		}

		_, err := r.db.Exec(ctx, `
			UPDATE cluster_models SET member_count = member_count + $3
			WHERE conversation_id = $1 AND cluster_index = $2`,
			conversationID, clusterIndex, n,
		)
		if err != nil {
			return fmt.Errorf("add member count for cluster %d: %w", clusterIndex, err)
		}
	}

	return nil
}
