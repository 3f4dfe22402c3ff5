package service

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hively/engine/internal/analysis"
	"github.com/hively/engine/internal/embeddings"
	"github.com/hively/engine/internal/models"
	"github.com/hively/engine/internal/observability"
	"github.com/hively/engine/pkg/cache"
)

const (
	defaultBatchSize = 100

	// themeSampleMax bounds how many texts are sent per cluster for labelling.
	themeSampleMax = 20

	// spreadPadding pads the max intra-cluster distance into the spread radius.
	spreadPadding = 1.1

	// minSpreadRadius is the floor for degenerate (single-point or collapsed)
	// clusters so incremental jitter still has room.
	minSpreadRadius = 0.1

	// miscJitterRadius bounds near-origin placement for misc responses, which
	// have no centroid model.
	miscJitterRadius = 0.5

	modelCacheEntries = 256
)

// AnalysisDeps holds the dependencies for the analysis service.
type AnalysisDeps struct {
	Conversations ConversationStore
	Responses     ResponseStore
	EmbeddingRows EmbeddingStore
	ClusterModels ClusterModelStore
	Themes        ThemeStore
	Consolidation ConsolidationStore // optional, used only with Consolidator
	Embedder      embeddings.Client
	ThemeGen      ThemeGenerator
	Consolidator  Consolidator // optional, consolidation is skipped when nil
	Reducer       analysis.Reducer
	// NewRand supplies the random source for jitter placement and forced-split
	// seeding; one source per run. Tests inject a fixed seed.
	NewRand func() *rand.Rand
	// BatchSize bounds per-response persistence batches (default 100).
	BatchSize int
	Metrics   observability.AnalysisMetrics // optional
}

// AnalysisService runs the full and incremental analysis pipelines for one
// conversation at a time. The external job queue guarantees at most one
// concurrent run per conversation; the service itself performs no locking.
type AnalysisService struct {
	deps       AnalysisDeps
	modelCache *cache.LoaderCache[uuid.UUID, []models.ClusterModel]
}

// NewAnalysisService creates an analysis service, applying defaults for the
// reducer, the random source, and the batch size.
func NewAnalysisService(deps AnalysisDeps) (*AnalysisService, error) {
	if deps.Reducer == nil {
		deps.Reducer = analysis.NewPCAReducer()
	}
	if deps.NewRand == nil {
		deps.NewRand = func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = defaultBatchSize
	}

	modelCache, err := cache.NewLoaderCache[uuid.UUID, []models.ClusterModel](
		modelCacheEntries, uuid.UUID.String,
	)
	if err != nil {
		return nil, err
	}

	return &AnalysisService{deps: deps, modelCache: modelCache}, nil
}
