package models

import "time"

type ApprovalStatus string

const (
	ApprovalDraft         ApprovalStatus = "draft"
	ApprovalPendingReview ApprovalStatus = "pending_review"
	ApprovalApproved      ApprovalStatus = "approved"
)

// Artifact is a compiled foundational document produced by a successful synthesis.
type Artifact struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	DocumentType      string         `json:"document_type"`
	Title             string         `json:"title"`
	Slug              string         `json:"slug"`
	Content           string         `json:"content"`
	Version           int            `json:"version"`
	PreviousVersionID string         `json:"previous_version_id,omitempty"`
	SourcesHash       string         `json:"sources_hash"`
	ApprovalStatus    ApprovalStatus `json:"approval_status"`
	RequiresReview    bool           `json:"requires_review"`
	SynthesisJobID    string         `json:"synthesis_job_id"`
	TokenCount        int            `json:"token_count"`
	Tier              int            `json:"tier"`
	CreatedAt         time.Time      `json:"created_at"`
}
