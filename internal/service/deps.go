// Package service contains the analysis orchestrators: the full pipeline that
// rebuilds a conversation's cluster structure from scratch, and the
// incremental pipeline that folds newly arrived responses into the existing
// structure. Both are invoked by externally scheduled jobs; they perform no
// locking of their own.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hively/engine/internal/models"
)

// ConversationStore is the conversation-level state access needed by the orchestrators.
type ConversationStore interface {
	GetAnalysisState(ctx context.Context, conversationID uuid.UUID) (*models.AnalysisState, error)
	SetStatus(ctx context.Context, conversationID uuid.UUID, status models.AnalysisStatus) error
	SetError(ctx context.Context, conversationID uuid.UUID, message string) error
	MarkReady(ctx context.Context, conversationID uuid.UUID, responseCount int, at time.Time) error
}

// ResponseStore is the per-response access needed by the orchestrators.
type ResponseStore interface {
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Response, error)
	ListNewSince(ctx context.Context, conversationID uuid.UUID, baseline *time.Time) ([]models.Response, error)
	ApplyAnalysisUpdates(ctx context.Context, updates []models.ResponseAnalysisUpdate, batchSize int) error
	CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error)
	CountByCluster(ctx context.Context, conversationID uuid.UUID) (map[int]int, error)
}

// EmbeddingStore persists and loads response embeddings.
type EmbeddingStore interface {
	UpsertBatch(ctx context.Context, embeddings []models.ResponseEmbedding, batchSize int) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID][]float32, error)
}

// ClusterModelStore persists and loads per-cluster models.
type ClusterModelStore interface {
	ReplaceAll(ctx context.Context, conversationID uuid.UUID, clusterModels []models.ClusterModel) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.ClusterModel, error)
	AddMemberCounts(ctx context.Context, conversationID uuid.UUID, added map[int]int) error
}

// ThemeStore persists theme rows.
type ThemeStore interface {
	ReplaceAll(ctx context.Context, conversationID uuid.UUID, themes []models.Theme) error
	UpdateSizes(ctx context.Context, conversationID uuid.UUID, sizes map[int]int) error
	UpsertMisc(ctx context.Context, conversationID uuid.UUID, size int) error
}

// ConsolidationStore persists consolidation buckets.
type ConsolidationStore interface {
	ReplaceAll(ctx context.Context, conversationID uuid.UUID, buckets []models.ConsolidationBucket) error
}

// ThemeGenerator is the external text-generation capability that names clusters.
type ThemeGenerator interface {
	GenerateThemes(ctx context.Context, samples map[int][]string) ([]models.ThemeDraft, error)
}

// Consolidator is the external capability that merges near-duplicate
// responses into shared statements. Best-effort: failures are logged, not fatal.
type Consolidator interface {
	ConsolidateClusters(ctx context.Context, clusters map[int][]models.ResponseText) (*models.ConsolidationResult, error)
}
