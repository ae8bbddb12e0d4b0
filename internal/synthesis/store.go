package synthesis

import (
	"context"
	"time"

	"docsynth/internal/models"
)

type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

type DocumentStore interface {
	AssignedDocuments(ctx context.Context, tenantID, documentType string) ([]models.SourceDocument, error)
}

type TransformerStore interface {
	TenantTransformer(ctx context.Context, tenantID, documentType string) (*models.TransformerConfig, error)
	SchemaPrompt(ctx context.Context, documentType string) (string, error)
}

type JobStore interface {
	InsertJob(ctx context.Context, job *models.SynthesisJob, claimKey string) error
	JobByClaimKey(ctx context.Context, claimKey string) (*models.SynthesisJob, error)
	JobByID(ctx context.Context, id string) (*models.SynthesisJob, error)
	CompleteJob(ctx context.Context, id, documentID, model string, tokens int, completedAt time.Time, durationMs int64) error
	FailJob(ctx context.Context, id, message string, completedAt time.Time, durationMs int64) error
	StaleJobs(ctx context.Context, cutoff time.Time) ([]models.SynthesisJob, error)
}

type ArtifactStore interface {
	LatestArtifact(ctx context.Context, tenantID, documentType string) (*models.Artifact, error)
	ArtifactByID(ctx context.Context, id string) (*models.Artifact, error)
	InsertArtifact(ctx context.Context, a *models.Artifact) error
}

// Store is everything the orchestrator reads and writes. *storage.Store satisfies it.
type Store interface {
	TenantStore
	DocumentStore
	TransformerStore
	JobStore
	ArtifactStore
}
