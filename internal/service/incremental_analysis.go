package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hively/engine/internal/analysis"
	"github.com/hively/engine/internal/apperrors"
	"github.com/hively/engine/internal/models"
	"github.com/hively/engine/pkg/embeddings"
)

// RunIncremental folds responses that arrived since the last successful run
// into the existing cluster structure. Cluster centroids and spread radii are
// never recomputed here; new responses are assigned to the nearest stored
// centroid and placed with jittered coordinates inside that cluster's spread.
// Requires a prior full run: missing cluster models is a fatal state error,
// which the scheduler resolves by enqueueing a full run instead.
func (s *AnalysisService) RunIncremental(ctx context.Context, conversationID uuid.UUID) error {
	start := time.Now()

	err := s.runIncremental(ctx, conversationID)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRun(ctx, "incremental", outcome, time.Since(start))
	}

	return err
}

func (s *AnalysisService) runIncremental(ctx context.Context, conversationID uuid.UUID) error {
	logger := slog.With("conversation_id", conversationID, "mode", "incremental")

	state, err := s.deps.Conversations.GetAnalysisState(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load analysis state: %w", err)
	}

	if err := s.deps.Conversations.SetStatus(ctx, conversationID, models.StatusEmbedding); err != nil {
		return fmt.Errorf("set status embedding: %w", err)
	}

	newResponses, err := s.deps.Responses.ListNewSince(ctx, conversationID, state.LastAnalyzedAt)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("list new responses: %w", err))
	}

	if len(newResponses) == 0 {
		logger.Info("no new responses")
		return s.deps.Conversations.SetStatus(ctx, conversationID, models.StatusReady)
	}

	clusterModels, err := s.modelCache.Get(ctx, conversationID, s.deps.ClusterModels.ListByConversation)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("load cluster models: %w", err))
	}
	if len(clusterModels) == 0 {
		return s.fail(ctx, conversationID, apperrors.NewInvalidStateError(
			"incremental analysis requires existing cluster models; run a full analysis first"))
	}

	texts := make([]string, len(newResponses))
	for i, r := range newResponses {
		texts[i] = r.Text
	}

	vectors, err := s.deps.Embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("generate embeddings: %w", err))
	}

	embeddings.NormalizeAll(vectors)

	rows := make([]models.ResponseEmbedding, len(newResponses))
	for i, r := range newResponses {
		rows[i] = models.ResponseEmbedding{ResponseID: r.ID, Embedding: vectors[i]}
	}
	if err := s.deps.EmbeddingRows.UpsertBatch(ctx, rows, s.deps.BatchSize); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("persist embeddings: %w", err))
	}

	if err := s.deps.Conversations.SetStatus(ctx, conversationID, models.StatusAnalyzing); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("set status analyzing: %w", err))
	}

	// Nearest-centroid assignment against the stored models. Indexing into
	// the model slice rather than by cluster label keeps ties resolved toward
	// the lowest stored index.
	centroids := make([][]float32, len(clusterModels))
	for i, m := range clusterModels {
		centroids[i] = m.Centroid
	}

	assigned := make([]int, len(newResponses)) // index into clusterModels
	distances := make([]float64, len(newResponses))
	newPerCluster := make(map[int][]int, len(clusterModels))
	for i := range newResponses {
		nearest := analysis.NearestCentroid(vectors[i], centroids)
		assigned[i] = nearest
		distances[i] = analysis.CosineDistance(vectors[i], centroids[nearest])
		newPerCluster[nearest] = append(newPerCluster[nearest], i)
	}

	// Outlier detection scans only the new arrivals, but the size gate counts
	// the whole cluster (existing members plus new ones).
	assignments := make([]models.ClusterAssignment, len(newResponses))
	scores := make([]*float64, len(newResponses))
	miscAdded := 0

	for modelIdx, idxs := range newPerCluster {
		clusterDistances := make([]float64, len(idxs))
		for j, idx := range idxs {
			clusterDistances[j] = distances[idx]
		}

		gateSize := clusterModels[modelIdx].MemberCount + len(idxs)
		result := analysis.FlagOutliers(clusterDistances, gateSize)

		label := clusterModels[modelIdx].ClusterIndex
		for j, idx := range idxs {
			if result.Flagged[j] {
				score := result.Scores[j]
				scores[idx] = &score
				assignments[idx] = models.Misc()
				miscAdded++
			} else {
				assignments[idx] = models.Numbered(label)
			}
		}
	}

	if miscAdded > 0 {
		logger.Info("new outliers redirected to misc", "count", miscAdded)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordOutliersFlagged(ctx, "incremental", miscAdded)
		}
	}

	rng := s.deps.NewRand()

	updates := make([]models.ResponseAnalysisUpdate, len(newResponses))
	addedPerLabel := make(map[int]int, len(clusterModels))
	for i, r := range newResponses {
		var x, y float64
		if assignments[i].IsMisc() {
			x, y = jitterAround(0, 0, miscJitterRadius, rng)
		} else {
			m := clusterModels[assigned[i]]
			x, y = jitterAround(m.CentroidX, m.CentroidY, m.SpreadRadius, rng)
			addedPerLabel[m.ClusterIndex]++
		}

		updates[i] = models.ResponseAnalysisUpdate{
			ResponseID:       r.ID,
			Assignment:       assignments[i],
			CoordX:           x,
			CoordY:           y,
			CentroidDistance: distances[i],
			OutlierScore:     scores[i],
		}
	}
	if err := s.deps.Responses.ApplyAnalysisUpdates(ctx, updates, s.deps.BatchSize); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("persist response updates: %w", err))
	}

	if len(addedPerLabel) > 0 {
		if err := s.deps.ClusterModels.AddMemberCounts(ctx, conversationID, addedPerLabel); err != nil {
			return s.fail(ctx, conversationID, fmt.Errorf("update cluster member counts: %w", err))
		}
		s.modelCache.Invalidate(conversationID)
	}

	// Refresh theme sizes from the actual persisted cluster memberships.
	sizes, err := s.deps.Responses.CountByCluster(ctx, conversationID)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("count cluster sizes: %w", err))
	}

	miscTotal := sizes[models.MiscSentinel]
	delete(sizes, models.MiscSentinel)

	if err := s.deps.Themes.UpdateSizes(ctx, conversationID, sizes); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("update theme sizes: %w", err))
	}
	if miscTotal > 0 {
		if err := s.deps.Themes.UpsertMisc(ctx, conversationID, miscTotal); err != nil {
			return s.fail(ctx, conversationID, fmt.Errorf("upsert misc theme: %w", err))
		}
	}

	total, err := s.deps.Responses.CountByConversation(ctx, conversationID)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("count responses: %w", err))
	}

	if err := s.deps.Conversations.MarkReady(ctx, conversationID, total, time.Now()); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	logger.Info("incremental analysis complete",
		"new_responses", len(newResponses),
		"misc", miscAdded,
		"total_responses", total,
	)

	return nil
}

// jitterAround picks a uniform random angle and a radius in [0, maxRadius),
// offsetting from the given center. Keeps new points visually inside the
// cluster's existing spread without recomputing the projection.
func jitterAround(cx, cy, maxRadius float64, rng *rand.Rand) (float64, float64) {
	theta := rng.Float64() * 2 * math.Pi
	r := rng.Float64() * maxRadius
	return cx + r*math.Cos(theta), cy + r*math.Sin(theta)
}
