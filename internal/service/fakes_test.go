package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hively/engine/internal/apperrors"
	"github.com/hively/engine/internal/models"
)

// In-memory store implementations for orchestrator tests. Each fake keeps the
// minimal state the pipelines read back, plus enough bookkeeping to assert on
// what was written.

type fakeConversationStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*models.AnalysisState

	statusHistory []models.AnalysisStatus
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{states: make(map[uuid.UUID]*models.AnalysisState)}
}

func (s *fakeConversationStore) seed(conversationID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[conversationID] = &models.AnalysisState{
		ConversationID: conversationID,
		Status:         models.StatusNotStarted,
	}
}

func (s *fakeConversationStore) GetAnalysisState(_ context.Context, conversationID uuid.UUID) (*models.AnalysisState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, apperrors.NewNotFoundError("conversation", "conversation not found")
	}
	copied := *state
	return &copied, nil
}

func (s *fakeConversationStore) SetStatus(_ context.Context, conversationID uuid.UUID, status models.AnalysisStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[conversationID]
	if !ok {
		return apperrors.NewNotFoundError("conversation", "conversation not found")
	}
	state.Status = status
	state.LastError = nil
	s.statusHistory = append(s.statusHistory, status)
	return nil
}

func (s *fakeConversationStore) SetError(_ context.Context, conversationID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[conversationID]
	if !ok {
		return apperrors.NewNotFoundError("conversation", "conversation not found")
	}
	state.Status = models.StatusError
	state.LastError = &message
	s.statusHistory = append(s.statusHistory, models.StatusError)
	return nil
}

func (s *fakeConversationStore) MarkReady(_ context.Context, conversationID uuid.UUID, responseCount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[conversationID]
	if !ok {
		return apperrors.NewNotFoundError("conversation", "conversation not found")
	}
	state.Status = models.StatusReady
	state.LastError = nil
	state.AnalyzedResponseCount = responseCount
	state.LastAnalyzedAt = &at
	s.statusHistory = append(s.statusHistory, models.StatusReady)
	return nil
}

type fakeResponseStore struct {
	mu        sync.Mutex
	responses []models.Response

	updateBatches int
}

func (s *fakeResponseStore) add(conversationID uuid.UUID, text string, createdAt time.Time) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.responses = append(s.responses, models.Response{
		ID:             id,
		ConversationID: conversationID,
		Text:           text,
		Assignment:     models.Unassigned(),
		CreatedAt:      createdAt,
	})
	return id
}

func (s *fakeResponseStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Response
	for _, r := range s.responses {
		if r.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResponseStore) ListNewSince(_ context.Context, conversationID uuid.UUID, baseline *time.Time) ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Response
	for _, r := range s.responses {
		if r.ConversationID != conversationID {
			continue
		}
		if baseline == nil {
			if r.Assignment.IsUnassigned() {
				out = append(out, r)
			}
			continue
		}
		if r.CreatedAt.After(*baseline) || r.Assignment.IsUnassigned() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResponseStore) ApplyAnalysisUpdates(_ context.Context, updates []models.ResponseAnalysisUpdate, batchSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for start := 0; start < len(updates); start += batchSize {
		s.updateBatches++
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		for _, u := range updates[start:end] {
			for i := range s.responses {
				if s.responses[i].ID != u.ResponseID {
					continue
				}
				x, y, d := u.CoordX, u.CoordY, u.CentroidDistance
				s.responses[i].Assignment = u.Assignment
				s.responses[i].CoordX = &x
				s.responses[i].CoordY = &y
				s.responses[i].CentroidDistance = &d
				s.responses[i].OutlierScore = u.OutlierScore
			}
		}
	}
	return nil
}

func (s *fakeResponseStore) CountByConversation(_ context.Context, conversationID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.responses {
		if r.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (s *fakeResponseStore) CountByCluster(_ context.Context, conversationID uuid.UUID) (map[int]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int)
	for _, r := range s.responses {
		if r.ConversationID != conversationID {
			continue
		}
		if enc := r.Assignment.EncodeSentinel(); enc != nil {
			out[*enc]++
		}
	}
	return out, nil
}

func (s *fakeResponseStore) byID(id uuid.UUID) models.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.responses {
		if r.ID == id {
			return r
		}
	}
	return models.Response{}
}

type fakeEmbeddingStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]float32
}

func newFakeEmbeddingStore() *fakeEmbeddingStore {
	return &fakeEmbeddingStore{rows: make(map[uuid.UUID][]float32)}
}

func (s *fakeEmbeddingStore) UpsertBatch(_ context.Context, embeddings []models.ResponseEmbedding, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range embeddings {
		s.rows[e.ResponseID] = e.Embedding
	}
	return nil
}

func (s *fakeEmbeddingStore) ListByConversation(_ context.Context, _ uuid.UUID) (map[uuid.UUID][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID][]float32, len(s.rows))
	for id, v := range s.rows {
		out[id] = v
	}
	return out, nil
}

type fakeClusterModelStore struct {
	mu          sync.Mutex
	models      map[uuid.UUID][]models.ClusterModel
	replaceCnt  int
	listCalls   int
	addedCounts map[int]int
}

func newFakeClusterModelStore() *fakeClusterModelStore {
	return &fakeClusterModelStore{models: make(map[uuid.UUID][]models.ClusterModel)}
}

func (s *fakeClusterModelStore) ReplaceAll(_ context.Context, conversationID uuid.UUID, clusterModels []models.ClusterModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[conversationID] = clusterModels
	s.replaceCnt++
	return nil
}

func (s *fakeClusterModelStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]models.ClusterModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return s.models[conversationID], nil
}

func (s *fakeClusterModelStore) AddMemberCounts(_ context.Context, conversationID uuid.UUID, added map[int]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addedCounts = added
	for i := range s.models[conversationID] {
		m := &s.models[conversationID][i]
		m.MemberCount += added[m.ClusterIndex]
	}
	return nil
}

type fakeThemeStore struct {
	mu       sync.Mutex
	themes   map[uuid.UUID][]models.Theme
	sizes    map[int]int
	miscSize int
}

func newFakeThemeStore() *fakeThemeStore {
	return &fakeThemeStore{themes: make(map[uuid.UUID][]models.Theme)}
}

func (s *fakeThemeStore) ReplaceAll(_ context.Context, conversationID uuid.UUID, themes []models.Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes[conversationID] = themes
	return nil
}

func (s *fakeThemeStore) UpdateSizes(_ context.Context, _ uuid.UUID, sizes map[int]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes = sizes
	return nil
}

func (s *fakeThemeStore) UpsertMisc(_ context.Context, _ uuid.UUID, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.miscSize = size
	return nil
}

type fakeConsolidationStore struct {
	mu      sync.Mutex
	buckets []models.ConsolidationBucket
}

func (s *fakeConsolidationStore) ReplaceAll(_ context.Context, _ uuid.UUID, buckets []models.ConsolidationBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = buckets
	return nil
}

type fakeThemeGenerator struct {
	err   error
	calls int
}

func (g *fakeThemeGenerator) GenerateThemes(_ context.Context, samples map[int][]string) ([]models.ThemeDraft, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	var out []models.ThemeDraft
	for label := range samples {
		out = append(out, models.ThemeDraft{
			ClusterIndex: label,
			Name:         "Generated theme",
			Description:  "A generated description",
		})
	}
	return out, nil
}

type failingEmbedder struct{ err error }

func (e *failingEmbedder) GenerateEmbeddings(context.Context, []string) ([][]float32, error) {
	return nil, e.err
}
