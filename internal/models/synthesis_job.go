package models

import "time"

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SynthesisJob is the durable record of one synthesis attempt.
type SynthesisJob struct {
	ID                    string     `json:"id"`
	TenantID              string     `json:"tenant_id"`
	DocumentType          string     `json:"document_type"`
	Status                JobStatus  `json:"status"`
	SourceDocumentIDs     []string   `json:"source_document_ids"`
	SourceHash            string     `json:"source_hash"`
	BaseVersion           int        `json:"base_version"`
	Forced                bool       `json:"forced"`
	ModelUsed             string     `json:"model_used,omitempty"`
	TokensUsed            int        `json:"tokens_used"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	DurationMs            *int64     `json:"duration_ms,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	SynthesizedDocumentID string     `json:"synthesized_document_id,omitempty"`
}
