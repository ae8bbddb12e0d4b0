package synthesis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"docsynth/internal/config"
	"docsynth/internal/models"
	"docsynth/internal/service/ai"
	"docsynth/internal/storage"
)

const (
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"

	noChangesMessage = "no changes detected"
)

// Request triggers one synthesis. An empty SourceDocumentIDs means every assigned document.
type Request struct {
	TenantID          string   `json:"tenantId"`
	DocumentType      string   `json:"documentType"`
	SourceDocumentIDs []string `json:"sourceDocumentIds,omitempty"`
	Force             bool     `json:"force,omitempty"`
}

type Result struct {
	DocumentID        string `json:"documentId"`
	Version           int    `json:"version,omitempty"`
	PreviousVersionID string `json:"previousVersionId,omitempty"`
	Status            string `json:"status"`
	TokensUsed        int    `json:"tokensUsed,omitempty"`
	JobID             string `json:"jobId,omitempty"`
	Skipped           bool   `json:"skipped,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Options wires a Service. Zero values fall back to the config package defaults.
type Options struct {
	FingerprintAlgorithm string
	Defaults             Defaults
	Persona              string
	TierTwoDocumentType  string
	AITimeout            time.Duration
	RaceWait             time.Duration
	Notifier             Notifier
}

// OptionsFromConfig maps the synthesis and basic config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FingerprintAlgorithm: cfg.Synthesis.FingerprintAlgorithm,
		Defaults: Defaults{
			Model:       cfg.Synthesis.FallbackModel,
			Temperature: cfg.Synthesis.FallbackTemperature,
			MaxTokens:   cfg.Synthesis.FallbackMaxTokens,
		},
		Persona:             cfg.Synthesis.Persona,
		TierTwoDocumentType: cfg.Synthesis.TierTwoDocumentType,
		AITimeout:           cfg.AITimeout(),
		RaceWait:            cfg.RaceWait(),
	}
}

// Service sequences one synthesis from source resolution to a completed job.
type Service struct {
	store        Store
	sources      *SourceSetResolver
	fingerprints *Fingerprinter
	transformers *TransformerResolver
	invoker      *Invoker
	jobs         *JobManager
	versions     *Versioner
}

func NewService(store Store, completer ai.Completer, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("synthesis store required")
	}
	if completer == nil {
		return nil, errors.New("ai completer required")
	}
	fp, err := NewFingerprinter(opts.FingerprintAlgorithm)
	if err != nil {
		return nil, err
	}
	defaults := opts.Defaults
	if defaults.Model == "" {
		defaults.Model = config.DefaultFallbackModel
	}
	if defaults.MaxTokens == 0 {
		defaults.MaxTokens = config.DefaultFallbackMaxTokens
	}
	timeout := opts.AITimeout
	if timeout <= 0 {
		timeout = config.DefaultAITimeout
	}
	tierTwo := opts.TierTwoDocumentType
	if tierTwo == "" {
		tierTwo = config.DefaultTierTwoDocumentType
	}
	return &Service{
		store:        store,
		sources:      NewSourceSetResolver(store),
		fingerprints: fp,
		transformers: NewTransformerResolver(store, defaults),
		invoker:      NewInvoker(completer, opts.Persona, timeout),
		jobs:         NewJobManager(store, opts.Notifier, opts.RaceWait),
		versions:     NewVersioner(store, tierTwo),
	}, nil
}

// Jobs exposes the job manager for status lookups and the sweeper.
func (s *Service) Jobs() *JobManager {
	return s.jobs
}

func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	if req.TenantID == "" {
		return nil, &ValidationError{Field: "tenantId"}
	}
	if req.DocumentType == "" {
		return nil, &ValidationError{Field: "documentType"}
	}

	tenant, err := s.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Kind: "tenant", ID: req.TenantID}
		}
		return nil, &PersistenceError{Op: "load tenant", Err: err}
	}

	docs, err := s.sources.Resolve(ctx, req.TenantID, req.DocumentType, req.SourceDocumentIDs)
	if err != nil {
		return nil, err
	}
	hash := s.fingerprints.Fingerprint(docs)

	latest, err := s.store.LatestArtifact(ctx, req.TenantID, req.DocumentType)
	if err != nil {
		return nil, &PersistenceError{Op: "load latest artifact", Err: err}
	}
	if !req.Force && latest != nil && latest.SourcesHash == hash {
		log.Printf("synthesis: %s/%s unchanged, reusing document %s", req.TenantID, req.DocumentType, latest.ID)
		return &Result{
			DocumentID: latest.ID,
			Version:    latest.Version,
			Status:     statusFor(latest.ApprovalStatus),
			Skipped:    true,
			Message:    noChangesMessage,
		}, nil
	}

	transformer, err := s.transformers.Resolve(ctx, req.TenantID, req.DocumentType)
	if err != nil {
		return nil, err
	}
	debugLog("synthesis: %s/%s using %s transformer, model %s", req.TenantID, req.DocumentType, transformer.Source, transformer.Model)

	baseVersion := 0
	if latest != nil {
		baseVersion = latest.Version
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	claim, err := s.jobs.Claim(ctx, ClaimRequest{
		TenantID:          req.TenantID,
		DocumentType:      req.DocumentType,
		SourceDocumentIDs: ids,
		SourceHash:        hash,
		BaseVersion:       baseVersion,
		Forced:            req.Force,
	})
	if err != nil {
		return nil, err
	}
	if !claim.Won {
		return s.converged(ctx, claim.Job)
	}
	job := claim.Job

	// the job must reach a terminal state even if the caller goes away
	persistCtx := context.WithoutCancel(ctx)

	out, err := s.invoker.Invoke(ctx, *transformer, docs)
	if err != nil {
		return nil, s.fail(persistCtx, job, err)
	}

	artifact, err := s.versions.Create(persistCtx, NewVersion{
		TenantID:     req.TenantID,
		TenantName:   tenant.Name,
		DocumentType: req.DocumentType,
		Content:      out.Content,
		SourcesHash:  hash,
		JobID:        job.ID,
		TokensIn:     out.TokensIn,
		TokensOut:    out.TokensOut,
	})
	if err != nil {
		return nil, s.fail(persistCtx, job, err)
	}

	if err := s.jobs.Complete(persistCtx, job, artifact.ID, out.Model, artifact.TokenCount); err != nil {
		if !errors.Is(err, storage.ErrNotRunning) {
			return nil, s.fail(persistCtx, job, err)
		}
		// the sweeper failed the job while it ran; the artifact is stored and stays the latest version
		log.Printf("synthesis: job %s was failed before completion, keeping document %s", job.ID, artifact.ID)
	}
	return &Result{
		DocumentID:        artifact.ID,
		Version:           artifact.Version,
		PreviousVersionID: artifact.PreviousVersionID,
		Status:            StatusPendingReview,
		TokensUsed:        artifact.TokenCount,
		JobID:             job.ID,
	}, nil
}

// fail records err on the job. A failure to do so is joined onto err, since the
// job record then still reads Running.
func (s *Service) fail(ctx context.Context, job *models.SynthesisJob, err error) error {
	if failErr := s.jobs.Fail(ctx, job, err); failErr != nil {
		return errors.Join(err, failErr)
	}
	return err
}

func (s *Service) converged(ctx context.Context, holder *models.SynthesisJob) (*Result, error) {
	artifact, err := s.store.ArtifactByID(ctx, holder.SynthesizedDocumentID)
	if err != nil {
		return nil, &PersistenceError{Op: fmt.Sprintf("load artifact of job %s", holder.ID), Err: err}
	}
	return &Result{
		DocumentID:        artifact.ID,
		Version:           artifact.Version,
		PreviousVersionID: artifact.PreviousVersionID,
		Status:            statusFor(artifact.ApprovalStatus),
		TokensUsed:        artifact.TokenCount,
		JobID:             holder.ID,
	}, nil
}

func statusFor(status models.ApprovalStatus) string {
	if status == models.ApprovalApproved {
		return StatusApproved
	}
	return StatusPendingReview
}
