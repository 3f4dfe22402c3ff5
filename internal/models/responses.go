package models

import (
	"time"

	"github.com/google/uuid"
)

// Response represents a single user-submitted text item within a conversation.
// The analysis pipeline owns the cluster/coordinate/distance/outlier fields;
// everything else is written at submission time and never touched here.
type Response struct {
	ID               uuid.UUID         `json:"id"`
	ConversationID   uuid.UUID         `json:"conversation_id"`
	Text             string            `json:"text"`
	Tag              *string           `json:"tag,omitempty"`
	Assignment       ClusterAssignment `json:"-"`
	CoordX           *float64          `json:"coord_x,omitempty"`
	CoordY           *float64          `json:"coord_y,omitempty"`
	CentroidDistance *float64          `json:"centroid_distance,omitempty"`
	OutlierScore     *float64          `json:"outlier_score,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ResponseAnalysisUpdate carries the analysis-derived fields persisted for one
// response after a full or incremental run.
type ResponseAnalysisUpdate struct {
	ResponseID       uuid.UUID
	Assignment       ClusterAssignment
	CoordX           float64
	CoordY           float64
	CentroidDistance float64
	OutlierScore     *float64
}

// NewResponse is a response to insert, as produced by bulk import.
type NewResponse struct {
	Text string  `json:"text"`
	Tag  *string `json:"tag,omitempty"`
}

// ResponseText is the id/text pair handed to text-generation capabilities.
type ResponseText struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// ResponseEmbedding pairs a response with its stored unit-length embedding.
type ResponseEmbedding struct {
	ResponseID uuid.UUID
	Embedding  []float32
}
