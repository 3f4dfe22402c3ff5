package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hively/engine/internal/apperrors"
	"github.com/hively/engine/internal/models"
)

// mapEmbedder returns a fixed vector per text, so tests control geometry.
type mapEmbedder struct {
	byText map[string][]float32
	calls  int
	texts  int
}

func (e *mapEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := e.byText[t]
		if !ok {
			return nil, fmt.Errorf("no embedding for %q", t)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

type serviceFixture struct {
	conversations *fakeConversationStore
	responses     *fakeResponseStore
	embeddingRows *fakeEmbeddingStore
	clusterModels *fakeClusterModelStore
	themes        *fakeThemeStore
	themeGen      *fakeThemeGenerator
	service       *AnalysisService
}

func newServiceFixture(t *testing.T, embedder interface {
	GenerateEmbeddings(context.Context, []string) ([][]float32, error)
}) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		conversations: newFakeConversationStore(),
		responses:     &fakeResponseStore{},
		embeddingRows: newFakeEmbeddingStore(),
		clusterModels: newFakeClusterModelStore(),
		themes:        newFakeThemeStore(),
		themeGen:      &fakeThemeGenerator{},
	}

	svc, err := NewAnalysisService(AnalysisDeps{
		Conversations: f.conversations,
		Responses:     f.responses,
		EmbeddingRows: f.embeddingRows,
		ClusterModels: f.clusterModels,
		Themes:        f.themes,
		Embedder:      embedder,
		ThemeGen:      f.themeGen,
		NewRand:       func() *rand.Rand { return rand.New(rand.NewSource(42)) },
	})
	require.NoError(t, err)

	f.service = svc
	return f
}

// twoGroupEmbedder builds texts split between two well-separated directions,
// each group internally identical.
func twoGroupFixtureTexts(perGroup int) (map[string][]float32, []string) {
	byText := make(map[string][]float32)
	var texts []string
	for i := 0; i < perGroup; i++ {
		a := fmt.Sprintf("billing issue %d", i)
		b := fmt.Sprintf("great onboarding %d", i)
		byText[a] = []float32{1, 0, 0}
		byText[b] = []float32{0, 1, 0}
		texts = append(texts, a, b)
	}
	return byText, texts
}

func TestRunFullEmptyConversation(t *testing.T) {
	f := newServiceFixture(t, &mapEmbedder{byText: map[string][]float32{}})
	conversationID := uuid.New()
	f.conversations.seed(conversationID)

	err := f.service.RunFull(context.Background(), conversationID)
	require.NoError(t, err)

	state, err := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, state.Status)
	assert.Equal(t, 0, state.AnalyzedResponseCount)
	assert.NotNil(t, state.LastAnalyzedAt)
}

func TestRunFullUnknownConversation(t *testing.T) {
	f := newServiceFixture(t, &mapEmbedder{byText: map[string][]float32{}})

	err := f.service.RunFull(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRunFullEndToEnd(t *testing.T) {
	byText, texts := twoGroupFixtureTexts(10)
	f := newServiceFixture(t, &mapEmbedder{byText: byText})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	base := time.Now().Add(-time.Hour)
	for i, text := range texts {
		f.responses.add(conversationID, text, base.Add(time.Duration(i)*time.Second))
	}

	err := f.service.RunFull(context.Background(), conversationID)
	require.NoError(t, err)

	// 20 responses: the minimum cluster count is 3, so the two natural groups
	// must have been split at least once.
	clusterModels := f.clusterModels.models[conversationID]
	require.GreaterOrEqual(t, len(clusterModels), 3)

	totalMembers := 0
	for _, m := range clusterModels {
		assert.GreaterOrEqual(t, m.MemberCount, 2)
		assert.GreaterOrEqual(t, m.SpreadRadius, 0.1)
		assert.Len(t, m.Centroid, 3)
		totalMembers += m.MemberCount
	}
	assert.Equal(t, len(texts), totalMembers)

	// Every response is assigned and carries coordinates.
	stored, err := f.responses.ListByConversation(context.Background(), conversationID)
	require.NoError(t, err)
	for _, r := range stored {
		assert.False(t, r.Assignment.IsUnassigned())
		require.NotNil(t, r.CoordX)
		require.NotNil(t, r.CoordY)
		require.NotNil(t, r.CentroidDistance)
	}

	// One theme per cluster, none for misc since nothing was flagged.
	themes := f.themes.themes[conversationID]
	require.Len(t, themes, len(clusterModels))
	for _, theme := range themes {
		assert.Equal(t, "Generated theme", theme.Name)
		assert.Positive(t, theme.Size)
	}

	state, err := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, state.Status)
	assert.Equal(t, len(texts), state.AnalyzedResponseCount)

	assert.Equal(t, []models.AnalysisStatus{
		models.StatusEmbedding,
		models.StatusAnalyzing,
		models.StatusReady,
	}, f.conversations.statusHistory)
}

func TestRunFullDeterministicAcrossRuns(t *testing.T) {
	byText, texts := twoGroupFixtureTexts(10)
	f := newServiceFixture(t, &mapEmbedder{byText: byText})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	base := time.Now().Add(-time.Hour)
	ids := make([]uuid.UUID, len(texts))
	for i, text := range texts {
		ids[i] = f.responses.add(conversationID, text, base.Add(time.Duration(i)*time.Second))
	}

	embedder := f.service.deps.Embedder.(*mapEmbedder)

	require.NoError(t, f.service.RunFull(context.Background(), conversationID))
	first := make(map[uuid.UUID]models.ClusterAssignment, len(ids))
	for _, id := range ids {
		first[id] = f.responses.byID(id).Assignment
	}
	embeddedTexts := embedder.texts
	assert.Equal(t, len(texts), embeddedTexts)

	require.NoError(t, f.service.RunFull(context.Background(), conversationID))
	for _, id := range ids {
		assert.Equal(t, first[id], f.responses.byID(id).Assignment)
	}

	// The second run reuses stored embeddings instead of re-embedding.
	assert.Equal(t, embeddedTexts, embedder.texts)
}

func TestRunFullEmbedderFailure(t *testing.T) {
	f := newServiceFixture(t, &failingEmbedder{err: errors.New("upstream unavailable")})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	f.responses.add(conversationID, "anything", time.Now())

	err := f.service.RunFull(context.Background(), conversationID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate embeddings")

	state, stateErr := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, stateErr)
	assert.Equal(t, models.StatusError, state.Status)
	require.NotNil(t, state.LastError)
	assert.Contains(t, *state.LastError, "upstream unavailable")
}

func TestRunFullThemeGenerationFailureIsFatal(t *testing.T) {
	byText, texts := twoGroupFixtureTexts(5)
	f := newServiceFixture(t, &mapEmbedder{byText: byText})
	f.themeGen.err = errors.New("model overloaded")

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	for i, text := range texts {
		f.responses.add(conversationID, text, time.Now().Add(time.Duration(i)*time.Second))
	}

	err := f.service.RunFull(context.Background(), conversationID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate themes")

	state, stateErr := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, stateErr)
	assert.Equal(t, models.StatusError, state.Status)
}

func TestRunIncrementalNoNewResponses(t *testing.T) {
	f := newServiceFixture(t, &mapEmbedder{byText: map[string][]float32{}})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	baseline := time.Now().Add(-time.Minute)
	require.NoError(t, f.conversations.MarkReady(context.Background(), conversationID, 0, baseline))

	err := f.service.RunIncremental(context.Background(), conversationID)
	require.NoError(t, err)

	state, stateErr := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, stateErr)
	assert.Equal(t, models.StatusReady, state.Status)
}

func TestRunIncrementalWithoutClusterModels(t *testing.T) {
	f := newServiceFixture(t, &mapEmbedder{byText: map[string][]float32{
		"orphan": {1, 0, 0},
	}})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	f.responses.add(conversationID, "orphan", time.Now())

	err := f.service.RunIncremental(context.Background(), conversationID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	state, stateErr := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, stateErr)
	assert.Equal(t, models.StatusError, state.Status)
}

func seedClusterModels(f *serviceFixture, conversationID uuid.UUID) {
	f.clusterModels.models[conversationID] = []models.ClusterModel{
		{
			ConversationID: conversationID,
			ClusterIndex:   0,
			Centroid:       []float32{1, 0, 0},
			CentroidX:      -2,
			CentroidY:      0,
			SpreadRadius:   0.5,
			MemberCount:    10,
		},
		{
			ConversationID: conversationID,
			ClusterIndex:   1,
			Centroid:       []float32{0, 1, 0},
			CentroidX:      2,
			CentroidY:      1,
			SpreadRadius:   0.3,
			MemberCount:    8,
		},
	}
}

func TestRunIncrementalNearestCentroidAssignment(t *testing.T) {
	f := newServiceFixture(t, &mapEmbedder{byText: map[string][]float32{
		"close to first":  {0.9, 0.1, 0},
		"close to second": {0.1, 0.95, 0},
	}})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	baseline := time.Now().Add(-time.Hour)
	require.NoError(t, f.conversations.MarkReady(context.Background(), conversationID, 18, baseline))
	seedClusterModels(f, conversationID)

	firstID := f.responses.add(conversationID, "close to first", baseline.Add(time.Minute))
	secondID := f.responses.add(conversationID, "close to second", baseline.Add(2*time.Minute))

	err := f.service.RunIncremental(context.Background(), conversationID)
	require.NoError(t, err)

	first := f.responses.byID(firstID)
	idx, ok := first.Assignment.Index()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	second := f.responses.byID(secondID)
	idx, ok = second.Assignment.Index()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	// Placement stays within each cluster's stored spread.
	require.NotNil(t, first.CoordX)
	dist := math.Hypot(*first.CoordX-(-2), *first.CoordY-0)
	assert.LessOrEqual(t, dist, 0.5)

	dist = math.Hypot(*second.CoordX-2, *second.CoordY-1)
	assert.LessOrEqual(t, dist, 0.3)

	// Member counts grow; stored centroids and radii do not change.
	assert.Equal(t, map[int]int{0: 1, 1: 1}, f.clusterModels.addedCounts)
	assert.Equal(t, 11, f.clusterModels.models[conversationID][0].MemberCount)
	assert.Equal(t, 0.5, f.clusterModels.models[conversationID][0].SpreadRadius)

	// Theme sizes refreshed from the persisted cluster membership.
	assert.Equal(t, map[int]int{0: 1, 1: 1}, f.themes.sizes)

	state, stateErr := f.conversations.GetAnalysisState(context.Background(), conversationID)
	require.NoError(t, stateErr)
	assert.Equal(t, models.StatusReady, state.Status)
	assert.Equal(t, 2, state.AnalyzedResponseCount)
}

func TestRunIncrementalOutlierGoesToMisc(t *testing.T) {
	byText := map[string][]float32{
		"far away": {0, 0, 1},
	}
	var texts []string
	for i := 0; i < 6; i++ {
		text := fmt.Sprintf("near first %d", i)
		// Varied small offsets keep the distance spread non-degenerate.
		byText[text] = []float32{1, float32(i+1) * 0.01, 0}
		texts = append(texts, text)
	}
	texts = append(texts, "far away")

	f := newServiceFixture(t, &mapEmbedder{byText: byText})

	conversationID := uuid.New()
	f.conversations.seed(conversationID)
	baseline := time.Now().Add(-time.Hour)
	require.NoError(t, f.conversations.MarkReady(context.Background(), conversationID, 18, baseline))
	seedClusterModels(f, conversationID)

	ids := make(map[string]uuid.UUID, len(texts))
	for i, text := range texts {
		ids[text] = f.responses.add(conversationID, text, baseline.Add(time.Duration(i+1)*time.Minute))
	}

	err := f.service.RunIncremental(context.Background(), conversationID)
	require.NoError(t, err)

	outlier := f.responses.byID(ids["far away"])
	assert.True(t, outlier.Assignment.IsMisc())
	require.NotNil(t, outlier.OutlierScore)
	assert.Greater(t, *outlier.OutlierScore, 3.5)

	// Misc responses land near the origin, inside the fixed misc radius.
	require.NotNil(t, outlier.CoordX)
	assert.LessOrEqual(t, math.Hypot(*outlier.CoordX, *outlier.CoordY), 0.5)

	for _, text := range texts[:6] {
		r := f.responses.byID(ids[text])
		idx, ok := r.Assignment.Index()
		require.True(t, ok, "expected %q assigned to a cluster", text)
		assert.Equal(t, 0, idx)
		assert.Nil(t, r.OutlierScore)
	}

	// Only non-misc arrivals count toward the cluster model.
	assert.Equal(t, map[int]int{0: 6}, f.clusterModels.addedCounts)
	assert.Equal(t, 1, f.themes.miscSize)
}

func TestSampleEvenly(t *testing.T) {
	idxs := make([]int, 50)
	for i := range idxs {
		idxs[i] = i
	}

	sampled := sampleEvenly(idxs, 20)
	require.Len(t, sampled, 20)
	assert.Equal(t, 0, sampled[0])
	for i := 1; i < len(sampled); i++ {
		assert.Greater(t, sampled[i], sampled[i-1])
	}

	small := []int{3, 1, 4}
	assert.Equal(t, small, sampleEvenly(small, 20))
}
