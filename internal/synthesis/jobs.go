package synthesis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"docsynth/internal/models"
	"docsynth/internal/storage"

	"github.com/google/uuid"
)

const (
	initialRaceBackoff = 100 * time.Millisecond
	maxRaceBackoff     = 2 * time.Second
)

// Notifier hears about every terminal job transition.
type Notifier interface {
	JobFinished(ctx context.Context, job *models.SynthesisJob)
}

// ClaimRequest describes the synthesis a caller wants to own.
type ClaimRequest struct {
	TenantID          string
	DocumentType      string
	SourceDocumentIDs []string
	SourceHash        string
	BaseVersion       int
	Forced            bool
}

// ClaimKey is unique per fingerprint and base version, so a completed job keeps
// later duplicates converging while a forced rerun after it gets a fresh key.
func ClaimKey(tenantID, documentType, sourceHash string, baseVersion int) string {
	return fmt.Sprintf("%s|%s|%s|v%d", tenantID, documentType, sourceHash, baseVersion)
}

// Claim is the outcome of trying to own a synthesis.
// Won is false when another job already produced the artifact; Job is then that job.
type Claim struct {
	Job *models.SynthesisJob
	Won bool
}

// JobManager owns the job lifecycle: Running, then exactly one of Completed or Failed.
type JobManager struct {
	store    JobStore
	notifier Notifier
	raceWait time.Duration

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

func NewJobManager(store JobStore, notifier Notifier, raceWait time.Duration) *JobManager {
	return &JobManager{
		store:    store,
		notifier: notifier,
		raceWait: raceWait,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		sleep:    sleepContext,
	}
}

// Claim inserts a Running job under the claim key. A loser converges on the winner's
// artifact, waits up to raceWait for it, or gets a RaceAmbiguousError.
func (m *JobManager) Claim(ctx context.Context, req ClaimRequest) (*Claim, error) {
	job := &models.SynthesisJob{
		ID:                m.newID(),
		TenantID:          req.TenantID,
		DocumentType:      req.DocumentType,
		Status:            models.JobRunning,
		SourceDocumentIDs: req.SourceDocumentIDs,
		SourceHash:        req.SourceHash,
		BaseVersion:       req.BaseVersion,
		Forced:            req.Forced,
		StartedAt:         m.now(),
	}
	key := ClaimKey(req.TenantID, req.DocumentType, req.SourceHash, req.BaseVersion)
	err := m.store.InsertJob(ctx, job, key)
	if err == nil {
		debugLog("synthesis: job %s claimed %s", job.ID, key)
		return &Claim{Job: job, Won: true}, nil
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		return nil, &PersistenceError{Op: "create synthesis job", Err: err}
	}

	holder, err := m.store.JobByClaimKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the winner failed and released the key between our insert and this read
			return nil, &RaceAmbiguousError{JobStatus: models.JobFailed}
		}
		return nil, &PersistenceError{Op: "load claiming job", Err: err}
	}
	holder, err = m.awaitResult(ctx, holder)
	if err != nil {
		return nil, err
	}
	log.Printf("synthesis: converged on job %s for %s/%s", holder.ID, req.TenantID, req.DocumentType)
	return &Claim{Job: holder, Won: false}, nil
}

// awaitResult polls the holder with exponential backoff until it has an artifact,
// fails, or raceWait runs out.
func (m *JobManager) awaitResult(ctx context.Context, holder *models.SynthesisJob) (*models.SynthesisJob, error) {
	deadline := m.now().Add(m.raceWait)
	backoff := initialRaceBackoff
	for {
		if holder.SynthesizedDocumentID != "" {
			return holder, nil
		}
		if holder.Status == models.JobFailed {
			return nil, &RaceAmbiguousError{JobID: holder.ID, JobStatus: holder.Status}
		}
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			log.Printf("synthesis: job %s still %s, giving up on convergence", holder.ID, holder.Status)
			return nil, &RaceAmbiguousError{JobID: holder.ID, JobStatus: holder.Status}
		}
		if backoff > remaining {
			backoff = remaining
		}
		if err := m.sleep(ctx, backoff); err != nil {
			return nil, &RaceAmbiguousError{JobID: holder.ID, JobStatus: holder.Status}
		}
		backoff *= 2
		if backoff > maxRaceBackoff {
			backoff = maxRaceBackoff
		}

		next, err := m.store.JobByID(ctx, holder.ID)
		if err != nil {
			return nil, &PersistenceError{Op: "poll claiming job", Err: err}
		}
		holder = next
	}
}

// Complete records success. The job must still be Running.
func (m *JobManager) Complete(ctx context.Context, job *models.SynthesisJob, documentID, model string, tokens int) error {
	completedAt := m.now()
	duration := completedAt.Sub(job.StartedAt).Milliseconds()
	if err := m.store.CompleteJob(ctx, job.ID, documentID, model, tokens, completedAt, duration); err != nil {
		return &PersistenceError{Op: "complete synthesis job", Err: err}
	}
	job.Status = models.JobCompleted
	job.SynthesizedDocumentID = documentID
	job.ModelUsed = model
	job.TokensUsed = tokens
	job.CompletedAt = &completedAt
	job.DurationMs = &duration
	log.Printf("synthesis: job %s completed in %dms (document %s, %d tokens)", job.ID, duration, documentID, tokens)
	m.notify(ctx, job)
	return nil
}

// Fail records cause on the job and releases its claim. A job that is no longer
// Running is left untouched.
func (m *JobManager) Fail(ctx context.Context, job *models.SynthesisJob, cause error) error {
	completedAt := m.now()
	duration := completedAt.Sub(job.StartedAt).Milliseconds()
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if err := m.store.FailJob(ctx, job.ID, message, completedAt, duration); err != nil {
		if errors.Is(err, storage.ErrNotRunning) {
			debugLog("synthesis: job %s already terminal, not failing", job.ID)
			return nil
		}
		log.Printf("synthesis: record failure for job %s failed: %v", job.ID, err)
		return &PersistenceError{Op: "fail synthesis job", Err: err}
	}
	job.Status = models.JobFailed
	job.ErrorMessage = message
	job.CompletedAt = &completedAt
	job.DurationMs = &duration
	log.Printf("synthesis: job %s failed after %dms: %s", job.ID, duration, message)
	m.notify(ctx, job)
	return nil
}

// Job loads a job by id, returning sql.ErrNoRows for unknown ids.
func (m *JobManager) Job(ctx context.Context, id string) (*models.SynthesisJob, error) {
	return m.store.JobByID(ctx, id)
}

func (m *JobManager) notify(ctx context.Context, job *models.SynthesisJob) {
	if m.notifier == nil {
		return
	}
	snapshot := *job
	m.notifier.JobFinished(ctx, &snapshot)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
