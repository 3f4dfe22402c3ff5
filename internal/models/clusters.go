package models

import (
	"time"

	"github.com/google/uuid"
)

// ClusterModel is one row per active cluster index for a conversation:
// the centroid in embedding space and 2D space, the padded spread radius, and
// the member count at the time it was built. Rebuilt wholesale by full
// analysis; the incremental path only bumps member counts.
type ClusterModel struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ClusterIndex   int       `json:"cluster_index"`
	Centroid       []float32 `json:"-"`
	CentroidX      float64   `json:"centroid_x"`
	CentroidY      float64   `json:"centroid_y"`
	SpreadRadius   float64   `json:"spread_radius"`
	MemberCount    int       `json:"member_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Theme is a cluster's display metadata. The misc bucket maps to a fixed
// "Misc" theme whenever any outliers exist.
type Theme struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ClusterIndex   int       `json:"cluster_index"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Size           int       `json:"size"`
}

// MiscThemeName is the fixed display name for the misc/outlier theme.
const MiscThemeName = "Misc"

// MiscTheme returns the fixed theme row for the misc bucket.
func MiscTheme(conversationID uuid.UUID, size int) Theme {
	return Theme{
		ConversationID: conversationID,
		ClusterIndex:   MiscSentinel,
		Name:           MiscThemeName,
		Description:    "Responses that did not fit any theme",
		Size:           size,
	}
}

// ConsolidationBucket groups responses within a cluster under one consolidated
// statement produced by the LLM. Leftover response ids that the model could
// not consolidate are kept on the cluster's final bucket with an empty
// statement by the caller.
type ConsolidationBucket struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	ClusterIndex   int         `json:"cluster_index"`
	Statement      string      `json:"statement"`
	ResponseIDs    []uuid.UUID `json:"response_ids"`
}
