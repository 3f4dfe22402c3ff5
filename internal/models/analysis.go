package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the per-conversation analysis state machine. Orchestrators
// move a conversation not_started → embedding → analyzing → ready; error is
// reachable from any step and halts progress until an external retry.
type AnalysisStatus string

const (
	StatusNotStarted AnalysisStatus = "not_started"
	StatusEmbedding  AnalysisStatus = "embedding"
	StatusAnalyzing  AnalysisStatus = "analyzing"
	StatusReady      AnalysisStatus = "ready"
	StatusError      AnalysisStatus = "error"
)

// AnalysisState is the conversation-level analysis bookkeeping. It is read at
// the start of a run and written back by the orchestrator between steps; there
// is no ambient global status.
type AnalysisState struct {
	ConversationID        uuid.UUID      `json:"conversation_id"`
	Status                AnalysisStatus `json:"status"`
	LastError             *string        `json:"last_error,omitempty"`
	AnalyzedResponseCount int            `json:"analyzed_response_count"`
	LastAnalyzedAt        *time.Time     `json:"last_analyzed_at,omitempty"`
}

// Stale reports whether new responses have arrived since the last successful
// analysis. External schedulers use this to decide whether a run is needed;
// full-vs-incremental strategy selection lives with them, not here.
func (s AnalysisState) Stale(currentResponseCount int) bool {
	if s.Status == StatusNotStarted {
		return currentResponseCount > 0
	}
	return currentResponseCount > s.AnalyzedResponseCount
}
