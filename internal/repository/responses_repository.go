package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hively/engine/internal/models"
)

// ResponsesRepository handles data access for the responses table.
type ResponsesRepository struct {
	db *pgxpool.Pool
}

// NewResponsesRepository creates a new responses repository.
func NewResponsesRepository(db *pgxpool.Pool) *ResponsesRepository {
	return &ResponsesRepository{db: db}
}

const responseColumns = `
	id, conversation_id, text, tag, cluster_index, coord_x, coord_y,
	centroid_distance, outlier_score, created_at, updated_at`

func scanResponse(row pgx.Row) (models.Response, error) {
	var (
		resp         models.Response
		clusterIndex *int
	)

	err := row.Scan(
		&resp.ID, &resp.ConversationID, &resp.Text, &resp.Tag, &clusterIndex,
		&resp.CoordX, &resp.CoordY, &resp.CentroidDistance, &resp.OutlierScore,
		&resp.CreatedAt, &resp.UpdatedAt,
	)
	if err != nil {
		return models.Response{}, err
	}

	resp.Assignment = models.DecodeSentinel(clusterIndex)

	return resp, nil
}

// ListByConversation returns all responses for a conversation in submission order.
func (r *ResponsesRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Response, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+responseColumns+`
		FROM responses WHERE conversation_id = $1
		ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	return collectResponses(rows)
}

// ListNewSince returns responses that arrived after the baseline timestamp,
// plus any that have never been assigned to a cluster. A nil baseline falls
// back to unassigned responses only.
func (r *ResponsesRepository) ListNewSince(ctx context.Context, conversationID uuid.UUID, baseline *time.Time) ([]models.Response, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if baseline == nil {
		rows, err = r.db.Query(ctx, `
			SELECT `+responseColumns+`
			FROM responses WHERE conversation_id = $1 AND cluster_index IS NULL
			ORDER BY created_at, id`,
			conversationID,
		)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+responseColumns+`
			FROM responses
			WHERE conversation_id = $1 AND (created_at > $2 OR cluster_index IS NULL)
			ORDER BY created_at, id`,
			conversationID, *baseline,
		)
	}

	if err != nil {
		return nil, fmt.Errorf("list new responses: %w", err)
	}
	defer rows.Close()

	return collectResponses(rows)
}

func collectResponses(rows pgx.Rows) ([]models.Response, error) {
	var responses []models.Response

	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}

		responses = append(responses, resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}

	return responses, nil
}

// InsertBatch inserts new responses for a conversation in submission order.
// Used by bulk import; the web application inserts its own rows.
func (r *ResponsesRepository) InsertBatch(ctx context.Context, conversationID uuid.UUID, rows []models.NewResponse) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO responses (id, conversation_id, text, tag, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)`,
			uuid.New(), conversationID, row.Text, row.Tag, now,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert response: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("close insert batch: %w", err)
	}

	return nil
}

// ApplyAnalysisUpdates persists analysis-derived fields for each response in
// batches. Failure aborts immediately, surfacing the affected response id;
// already-written batches remain applied (idempotent retry corrects them).
func (r *ResponsesRepository) ApplyAnalysisUpdates(
	ctx context.Context, updates []models.ResponseAnalysisUpdate, batchSize int,
) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	now := time.Now()

	for start := 0; start < len(updates); start += batchSize {
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}

		batch := &pgx.Batch{}
		for _, u := range updates[start:end] {
			batch.Queue(`
				UPDATE responses
				SET cluster_index = $2, coord_x = $3, coord_y = $4,
				    centroid_distance = $5, outlier_score = $6, updated_at = $7
				WHERE id = $1`,
				u.ResponseID, u.Assignment.EncodeSentinel(), u.CoordX, u.CoordY,
				u.CentroidDistance, u.OutlierScore, now,
			)
		}

		results := r.db.SendBatch(ctx, batch)
		for _, u := range updates[start:end] {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("update response %s: %w", u.ResponseID, err)
			}
		}

		if err := results.Close(); err != nil {
			return fmt.Errorf("close update batch: %w", err)
		}
	}

	return nil
}

// CountByConversation returns the total number of responses in a conversation.
func (r *ResponsesRepository) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM responses WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}

	return count, nil
}

// CountByCluster returns member counts per assigned cluster index, including
// the misc sentinel. Unassigned responses are excluded.
func (r *ResponsesRepository) CountByCluster(ctx context.Context, conversationID uuid.UUID) (map[int]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cluster_index, COUNT(*)
		FROM responses
		WHERE conversation_id = $1 AND cluster_index IS NOT NULL
		GROUP BY cluster_index`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("count by cluster: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)

	for rows.Next() {
		var clusterIndex, count int
		if err := rows.Scan(&clusterIndex, &count); err != nil {
			return nil, fmt.Errorf("scan cluster count: %w", err)
		}

		counts[clusterIndex] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cluster counts: %w", err)
	}

	return counts, nil
}
