package synthesis

import (
	"fmt"

	"docsynth/internal/models"
)

// ValidationError reports missing or malformed request input.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// EmptySourceSetError means nothing usable is assigned for the document type.
type EmptySourceSetError struct {
	TenantID     string
	DocumentType string
}

func (e *EmptySourceSetError) Error() string {
	return fmt.Sprintf("no source documents with content assigned to %s for tenant %s", e.DocumentType, e.TenantID)
}

type NoTransformerConfiguredError struct {
	TenantID     string
	DocumentType string
}

func (e *NoTransformerConfiguredError) Error() string {
	return fmt.Sprintf("no transformer configured for document type %s (tenant %s)", e.DocumentType, e.TenantID)
}

// ProviderError is an upstream AI failure. HTTPStatus is 0 when no response was received.
type ProviderError struct {
	HTTPStatus int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("ai provider error: %s", e.Body)
	}
	return fmt.Sprintf("ai provider error (status %d): %s", e.HTTPStatus, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RaceAmbiguousError is returned to a claim loser whose winner has not produced an artifact.
// Callers poll the job by JobID.
type RaceAmbiguousError struct {
	JobID     string
	JobStatus models.JobStatus
}

func (e *RaceAmbiguousError) Error() string {
	if e.JobStatus == models.JobFailed {
		return fmt.Sprintf("concurrent synthesis job %s failed; retry the request", e.JobID)
	}
	return fmt.Sprintf("synthesis already in progress as job %s", e.JobID)
}
