package models

import "time"

// SourceDocument is one input to a synthesis. It is read-only for the duration of a run.
type SourceDocument struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment places a source document in a tenant's set for one document type.
type Assignment struct {
	TenantID     string `json:"tenant_id"`
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	DisplayOrder int    `json:"display_order"`
}
