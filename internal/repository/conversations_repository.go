// Package repository provides raw-SQL data access for the analysis engine's
// Postgres store (conversations, responses, embeddings, cluster models,
// themes, consolidation buckets).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hively/engine/internal/apperrors"
	"github.com/hively/engine/internal/models"
)

// ConversationsRepository handles the conversation-level analysis state.
type ConversationsRepository struct {
	db *pgxpool.Pool
}

// NewConversationsRepository creates a new conversations repository.
func NewConversationsRepository(db *pgxpool.Pool) *ConversationsRepository {
	return &ConversationsRepository{db: db}
}

// GetAnalysisState returns the analysis bookkeeping for the conversation.
// Returns a NotFoundError when the conversation doesn't exist.
func (r *ConversationsRepository) GetAnalysisState(ctx context.Context, conversationID uuid.UUID) (*models.AnalysisState, error) {
	state := models.AnalysisState{ConversationID: conversationID}

	err := r.db.QueryRow(ctx, `
		SELECT analysis_status, analysis_error, analyzed_response_count, last_analyzed_at
		FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&state.Status, &state.LastError, &state.AnalyzedResponseCount, &state.LastAnalyzedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("conversation", fmt.Sprintf("conversation %s not found", conversationID))
		}

		return nil, fmt.Errorf("get analysis state: %w", err)
	}

	return &state, nil
}

// SetStatus updates the analysis status and clears any previous error.
func (r *ConversationsRepository) SetStatus(ctx context.Context, conversationID uuid.UUID, status models.AnalysisStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations SET analysis_status = $2, analysis_error = NULL
		WHERE id = $1`,
		conversationID, status,
	)
	if err != nil {
		return fmt.Errorf("set analysis status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("conversation", fmt.Sprintf("conversation %s not found", conversationID))
	}

	return nil
}

// SetError marks the conversation's analysis as failed with the captured message.
func (r *ConversationsRepository) SetError(ctx context.Context, conversationID uuid.UUID, message string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations SET analysis_status = $2, analysis_error = $3
		WHERE id = $1`,
		conversationID, models.StatusError, message,
	)
	if err != nil {
		return fmt.Errorf("set analysis error: %w", err)
	}

	return nil
}

// MarkReady records a successful run: status, response count at analysis, and
// the analysis timestamp.
func (r *ConversationsRepository) MarkReady(ctx context.Context, conversationID uuid.UUID, responseCount int, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET analysis_status = $2, analysis_error = NULL,
		    analyzed_response_count = $3, last_analyzed_at = $4
		WHERE id = $1`,
		conversationID, models.StatusReady, responseCount, at,
	)
	if err != nil {
		return fmt.Errorf("mark analysis ready: %w", err)
	}

	return nil
}
