package models

import "github.com/google/uuid"

// ThemeDraft is a generated name/description for one cluster, before sizes
// and identifiers are attached by the orchestrator.
type ThemeDraft struct {
	ClusterIndex int    `json:"cluster_index"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

// ConsolidationDraft is one generated bucket: a consolidated statement and the
// responses it covers.
type ConsolidationDraft struct {
	ClusterIndex int         `json:"cluster_index"`
	Statement    string      `json:"statement"`
	ResponseIDs  []uuid.UUID `json:"response_ids"`
}

// ConsolidationResult is the outcome of the best-effort consolidation stage.
type ConsolidationResult struct {
	Buckets     []ConsolidationDraft `json:"buckets"`
	LeftoverIDs []uuid.UUID          `json:"leftover_ids"`
}
