// Package jobs defines the River job types for conversation analysis and the
// inserter used to enqueue them with per-conversation uniqueness.
package jobs

import "github.com/google/uuid"

// FullAnalysisArgs requests a from-scratch analysis of one conversation.
type FullAnalysisArgs struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Kind returns the job type identifier for River.
func (FullAnalysisArgs) Kind() string { return "analysis_full" }

// IncrementalAnalysisArgs requests folding new responses into a conversation's
// existing cluster structure.
type IncrementalAnalysisArgs struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Kind returns the job type identifier for River.
func (IncrementalAnalysisArgs) Kind() string { return "analysis_incremental" }
