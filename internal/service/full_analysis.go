package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hively/engine/internal/analysis"
	"github.com/hively/engine/internal/models"
	"github.com/hively/engine/pkg/embeddings"
)

// RunFull executes the complete analysis pipeline for a conversation,
// rebuilding cluster models and themes from scratch. Any failure captures the
// message on the conversation (status=error) and returns the error; the
// calling worker owns retry policy. Re-running is idempotent: cluster models
// and themes are replaced wholesale and per-response writes converge.
func (s *AnalysisService) RunFull(ctx context.Context, conversationID uuid.UUID) error {
	start := time.Now()

	err := s.runFull(ctx, conversationID)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRun(ctx, "full", outcome, time.Since(start))
	}

	return err
}

func (s *AnalysisService) runFull(ctx context.Context, conversationID uuid.UUID) error {
	logger := slog.With("conversation_id", conversationID, "mode", "full")

	if _, err := s.deps.Conversations.GetAnalysisState(ctx, conversationID); err != nil {
		return fmt.Errorf("load analysis state: %w", err)
	}

	if err := s.deps.Conversations.SetStatus(ctx, conversationID, models.StatusEmbedding); err != nil {
		return fmt.Errorf("set status embedding: %w", err)
	}

	responses, err := s.deps.Responses.ListByConversation(ctx, conversationID)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("list responses: %w", err))
	}

	if len(responses) == 0 {
		logger.Info("no responses to analyze")
		return s.deps.Conversations.MarkReady(ctx, conversationID, 0, time.Now())
	}

	vectors, err := s.embedResponses(ctx, conversationID, responses)
	if err != nil {
		return s.fail(ctx, conversationID, err)
	}

	if err := s.deps.Conversations.SetStatus(ctx, conversationID, models.StatusAnalyzing); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("set status analyzing: %w", err))
	}

	points, err := s.deps.Reducer.Reduce(vectors)
	if err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("reduce to 2d: %w", err))
	}

	rng := s.deps.NewRand()

	labels := analysis.KMeans(vectors, analysis.AutoK(len(vectors)), 0, rng)
	assignments := make([]models.ClusterAssignment, len(labels))
	for i, l := range labels {
		assignments[i] = models.Numbered(l)
	}
	assignments = analysis.RelabelBySize(assignments)

	floor := analysis.EnforceFloor(vectors, assignments, rng)
	assignments = floor.Assignments

	if floor.Splits > 0 {
		logger.Info("enforced minimum cluster floor",
			"splits", floor.Splits,
			"effective_minimum", floor.EffectiveMinimum,
			"final_clusters", floor.FinalClusters,
		)
	}
	if floor.FinalClusters < floor.EffectiveMinimum {
		logger.Warn("cluster floor shortfall", "reason", floor.ShortfallReason)
	}
	if s.deps.Metrics != nil && floor.Splits > 0 {
		s.deps.Metrics.RecordFloorSplits(ctx, floor.Splits)
	}

	// Centroids and per-response distances over the enforced structure.
	members := analysis.ClusterMembers(assignments)
	centroids := make(map[int][]float32, len(members))
	for label, idxs := range members {
		centroids[label] = analysis.Centroid(vectors, idxs)
	}

	distances := make([]float64, len(responses))
	for i, a := range assignments {
		if idx, ok := a.Index(); ok {
			distances[i] = analysis.CosineDistance(vectors[i], centroids[idx])
		}
	}

	// Outlier detection per cluster; flagged members move to misc but keep
	// their score for observability.
	scores := make([]*float64, len(responses))
	miscCount := 0

	for _, idxs := range members {
		clusterDistances := make([]float64, len(idxs))
		for j, idx := range idxs {
			clusterDistances[j] = distances[idx]
		}

		result := analysis.FlagOutliers(clusterDistances, len(idxs))
		for j, idx := range idxs {
			if result.Flagged[j] {
				score := result.Scores[j]
				scores[idx] = &score
				assignments[idx] = models.Misc()
				miscCount++
			}
		}
	}

	if miscCount > 0 {
		logger.Info("outliers redirected to misc", "count", miscCount)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordOutliersFlagged(ctx, "full", miscCount)
		}
	}

	updates := make([]models.ResponseAnalysisUpdate, len(responses))
	for i, r := range responses {
		updates[i] = models.ResponseAnalysisUpdate{
			ResponseID:       r.ID,
			Assignment:       assignments[i],
			CoordX:           points[i].X,
			CoordY:           points[i].Y,
			CentroidDistance: distances[i],
			OutlierScore:     scores[i],
		}
	}
	if err := s.deps.Responses.ApplyAnalysisUpdates(ctx, updates, s.deps.BatchSize); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("persist response updates: %w", err))
	}

	clusterModels := s.buildClusterModels(conversationID, vectors, points, assignments, centroids)
	if err := s.deps.ClusterModels.ReplaceAll(ctx, conversationID, clusterModels); err != nil {
		return s.fail(ctx, conversationID, fmt.Errorf("persist cluster models: %w", err))
	}
	s.modelCache.Invalidate(conversationID)

	if err := s.generateAndPersistThemes(ctx, conversationID, responses, assignments, miscCount); err != nil {
		return s.fail(ctx, conversationID, err)
	}

	s.consolidate(ctx, conversationID, responses, assignments, logger)

	if err := s.deps.Conversations.MarkReady(ctx, conversationID, len(responses), time.Now()); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	logger.Info("full analysis complete",
		"responses", len(responses),
		"clusters", len(clusterModels),
		"misc", miscCount,
	)

	return nil
}

// embedResponses returns one unit-length vector per response, in response
// order. Stored embeddings are reused; only responses without one go to the
// embedding provider, and the new vectors are persisted before returning.
func (s *AnalysisService) embedResponses(
	ctx context.Context,
	conversationID uuid.UUID,
	responses []models.Response,
) ([][]float32, error) {
	stored, err := s.deps.EmbeddingRows.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load stored embeddings: %w", err)
	}

	vectors := make([][]float32, len(responses))

	var (
		missingIdx   []int
		missingTexts []string
	)
	for i, r := range responses {
		if v, ok := stored[r.ID]; ok && len(v) > 0 {
			vectors[i] = v
			continue
		}

		missingIdx = append(missingIdx, i)
		missingTexts = append(missingTexts, r.Text)
	}

	if len(missingTexts) == 0 {
		return vectors, nil
	}

	generated, err := s.deps.Embedder.GenerateEmbeddings(ctx, missingTexts)
	if err != nil {
		return nil, fmt.Errorf("generate embeddings: %w", err)
	}

	embeddings.NormalizeAll(generated)

	rows := make([]models.ResponseEmbedding, len(missingIdx))
	for j, idx := range missingIdx {
		vectors[idx] = generated[j]
		rows[j] = models.ResponseEmbedding{ResponseID: responses[idx].ID, Embedding: generated[j]}
	}
	if err := s.deps.EmbeddingRows.UpsertBatch(ctx, rows, s.deps.BatchSize); err != nil {
		return nil, fmt.Errorf("persist embeddings: %w", err)
	}

	return vectors, nil
}

// buildClusterModels computes, per surviving cluster, the embedding-space
// centroid, the 2D centroid, and the spread radius (padded max distance from
// the centroid, floored for degenerate clusters).
func (s *AnalysisService) buildClusterModels(
	conversationID uuid.UUID,
	vectors [][]float32,
	points []analysis.Point2D,
	assignments []models.ClusterAssignment,
	centroids map[int][]float32,
) []models.ClusterModel {
	members := analysis.ClusterMembers(assignments)

	out := make([]models.ClusterModel, 0, len(members))

	for label, idxs := range members {
		centroid := centroids[label]

		var cx, cy, maxDist float64
		for _, idx := range idxs {
			cx += points[idx].X
			cy += points[idx].Y

			if d := analysis.CosineDistance(vectors[idx], centroid); d > maxDist {
				maxDist = d
			}
		}
		cx /= float64(len(idxs))
		cy /= float64(len(idxs))

		radius := maxDist * spreadPadding
		if radius < minSpreadRadius {
			radius = minSpreadRadius
		}

		out = append(out, models.ClusterModel{
			ConversationID: conversationID,
			ClusterIndex:   label,
			Centroid:       centroid,
			CentroidX:      cx,
			CentroidY:      cy,
			SpreadRadius:   radius,
			MemberCount:    len(idxs),
		})
	}

	return out
}

// generateAndPersistThemes asks the external labeller to name each non-misc
// cluster from a bounded, diversity-preserving sample, appends the fixed Misc
// theme when outliers exist, and replaces the conversation's theme set.
func (s *AnalysisService) generateAndPersistThemes(
	ctx context.Context,
	conversationID uuid.UUID,
	responses []models.Response,
	assignments []models.ClusterAssignment,
	miscCount int,
) error {
	members := analysis.ClusterMembers(assignments)

	samples := make(map[int][]string, len(members))
	for label, idxs := range members {
		sampled := sampleEvenly(idxs, themeSampleMax)
		texts := make([]string, len(sampled))
		for j, idx := range sampled {
			texts[j] = responses[idx].Text
		}
		samples[label] = texts
	}

	drafts, err := s.deps.ThemeGen.GenerateThemes(ctx, samples)
	if err != nil {
		return fmt.Errorf("generate themes: %w", err)
	}

	named := make(map[int]models.ThemeDraft, len(drafts))
	for _, d := range drafts {
		named[d.ClusterIndex] = d
	}

	themes := make([]models.Theme, 0, len(members)+1)
	for label, idxs := range members {
		theme := models.Theme{
			ConversationID: conversationID,
			ClusterIndex:   label,
			Name:           fmt.Sprintf("Theme %d", label+1),
			Size:           len(idxs),
		}
		if d, ok := named[label]; ok {
			theme.Name = d.Name
			theme.Description = d.Description
		}
		themes = append(themes, theme)
	}

	if miscCount > 0 {
		themes = append(themes, models.MiscTheme(conversationID, miscCount))
	}

	if err := s.deps.Themes.ReplaceAll(ctx, conversationID, themes); err != nil {
		return fmt.Errorf("persist themes: %w", err)
	}

	return nil
}

// consolidate runs the best-effort statement consolidation stage. Errors are
// logged and swallowed; the run continues.
func (s *AnalysisService) consolidate(
	ctx context.Context,
	conversationID uuid.UUID,
	responses []models.Response,
	assignments []models.ClusterAssignment,
	logger *slog.Logger,
) {
	if s.deps.Consolidator == nil || s.deps.Consolidation == nil {
		return
	}

	members := analysis.ClusterMembers(assignments)

	clusters := make(map[int][]models.ResponseText, len(members))
	for label, idxs := range members {
		texts := make([]models.ResponseText, len(idxs))
		for j, idx := range idxs {
			texts[j] = models.ResponseText{ID: responses[idx].ID, Text: responses[idx].Text}
		}
		clusters[label] = texts
	}

	result, err := s.deps.Consolidator.ConsolidateClusters(ctx, clusters)
	if err != nil {
		logger.Warn("consolidation failed, continuing", "error", err)
		return
	}

	buckets := make([]models.ConsolidationBucket, 0, len(result.Buckets))
	for _, draft := range result.Buckets {
		buckets = append(buckets, models.ConsolidationBucket{
			ConversationID: conversationID,
			ClusterIndex:   draft.ClusterIndex,
			Statement:      draft.Statement,
			ResponseIDs:    draft.ResponseIDs,
		})
	}

	if err := s.deps.Consolidation.ReplaceAll(ctx, conversationID, buckets); err != nil {
		logger.Warn("persisting consolidation buckets failed, continuing", "error", err)
	}
}

// fail captures the error message on the conversation before returning it.
func (s *AnalysisService) fail(ctx context.Context, conversationID uuid.UUID, err error) error {
	if setErr := s.deps.Conversations.SetError(ctx, conversationID, err.Error()); setErr != nil {
		slog.Error("failed to record analysis error",
			"conversation_id", conversationID,
			"error", setErr,
			"original_error", err,
		)
	}

	return err
}

// sampleEvenly picks up to max elements spread evenly across the input order,
// preserving submission-order diversity rather than sampling randomly.
func sampleEvenly(idxs []int, max int) []int {
	if len(idxs) <= max {
		return idxs
	}

	out := make([]int, 0, max)
	step := float64(len(idxs)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, idxs[int(float64(i)*step)])
	}

	return out
}
