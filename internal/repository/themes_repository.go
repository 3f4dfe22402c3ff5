package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hively/engine/internal/models"
)

// ThemesRepository handles data access for the themes table.
type ThemesRepository struct {
	db *pgxpool.Pool
}

// NewThemesRepository creates a new themes repository.
func NewThemesRepository(db *pgxpool.Pool) *ThemesRepository {
	return &ThemesRepository{db: db}
}

// ReplaceAll atomically replaces the conversation's themes (full analysis
// semantics: delete everything, insert the new set).
func (r *ThemesRepository) ReplaceAll(ctx context.Context, conversationID uuid.UUID, themes []models.Theme) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace themes: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`DELETE FROM themes WHERE conversation_id = $1`, conversationID,
	); err != nil {
		return fmt.Errorf("delete themes: %w", err)
	}

	for _, theme := range themes {
		_, err := tx.Exec(ctx, `
			INSERT INTO themes (id, conversation_id, cluster_index, name, description, size)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), conversationID, theme.ClusterIndex, theme.Name, theme.Description, theme.Size,
		)
		if err != nil {
			return fmt.Errorf("insert theme for cluster %d: %w", theme.ClusterIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit themes: %w", err)
	}

	return nil
}

// UpdateSizes rewrites theme sizes from a recount of cluster membership.
// Unknown cluster indices are ignored (no theme row to update).
func (r *ThemesRepository) UpdateSizes(ctx context.Context, conversationID uuid.UUID, sizes map[int]int) error {
	for clusterIndex, size := range sizes {
		_, err := r.db.Exec(ctx, `
			UPDATE themes SET size = $3
			WHERE conversation_id = $1 AND cluster_index = $2`,
			conversationID, clusterIndex, size,
		)
		if err != nil {
			return fmt.Errorf("update theme size for cluster %d: %w", clusterIndex, err)
		}
	}

	return nil
}

// UpsertMisc inserts or updates the fixed Misc theme for the conversation.
func (r *ThemesRepository) UpsertMisc(ctx context.Context, conversationID uuid.UUID, size int) error {
	misc := models.MiscTheme(conversationID, size)

	_, err := r.db.Exec(ctx, `
		INSERT INTO themes (id, conversation_id, cluster_index, name, description, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, cluster_index)
		DO UPDATE SET size = EXCLUDED.size`,
		uuid.New(), conversationID, misc.ClusterIndex, misc.Name, misc.Description, misc.Size,
	)
	if err != nil {
		return fmt.Errorf("upsert misc theme: %w", err)
	}

	return nil
}

