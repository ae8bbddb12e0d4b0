package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"docsynth/internal/models"
)

const jobColumns = `id, tenant_id, document_type, status, source_document_ids, source_hash, base_version, forced,
	model_used, tokens_used, started_at, completed_at, duration_ms, error_message, synthesized_document_id`

// InsertJob stores a new Running job holding claimKey. A clash on claim_key (or id)
// returns ErrDuplicate: another caller already owns that claim.
func (s *Store) InsertJob(ctx context.Context, job *models.SynthesisJob, claimKey string) error {
	ids, err := json.Marshal(job.SourceDocumentIDs)
	if err != nil {
		return fmt.Errorf("encode source ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO synthesis_jobs (id, tenant_id, document_type, status, source_document_ids, source_hash,
			base_version, forced, claim_key, model_used, tokens_used, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.DocumentType, job.Status, string(ids), job.SourceHash,
		job.BaseVersion, job.Forced, claimKey, job.ModelUsed, job.TokensUsed, job.StartedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert synthesis job: %w", err)
	}
	return nil
}

// JobByClaimKey returns the job currently holding claimKey, or sql.ErrNoRows.
func (s *Store) JobByClaimKey(ctx context.Context, claimKey string) (*models.SynthesisJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM synthesis_jobs WHERE claim_key = ?`, claimKey)
	return scanJob(row)
}

// JobByID returns sql.ErrNoRows for unknown ids.
func (s *Store) JobByID(ctx context.Context, id string) (*models.SynthesisJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM synthesis_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// CompleteJob moves a Running job to Completed. The claim is kept so that late
// duplicates converge on the same artifact.
func (s *Store) CompleteJob(ctx context.Context, id, documentID, model string, tokens int, completedAt time.Time, durationMs int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE synthesis_jobs
		 SET status = ?, synthesized_document_id = ?, model_used = ?, tokens_used = ?, completed_at = ?, duration_ms = ?
		 WHERE id = ? AND status = ?`,
		models.JobCompleted, documentID, model, tokens, completedAt, durationMs, id, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("complete synthesis job: %w", err)
	}
	return expectOneRow(res)
}

// FailJob moves a Running job to Failed and releases its claim so the fingerprint can be retried.
func (s *Store) FailJob(ctx context.Context, id, message string, completedAt time.Time, durationMs int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE synthesis_jobs
		 SET status = ?, error_message = ?, completed_at = ?, duration_ms = ?, claim_key = NULL
		 WHERE id = ? AND status = ?`,
		models.JobFailed, message, completedAt, durationMs, id, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("fail synthesis job: %w", err)
	}
	return expectOneRow(res)
}

// StaleJobs lists Running jobs started before cutoff.
func (s *Store) StaleJobs(ctx context.Context, cutoff time.Time) ([]models.SynthesisJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM synthesis_jobs WHERE status = ? AND started_at < ? ORDER BY started_at ASC`,
		models.JobRunning, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.SynthesisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// CountJobs returns how many jobs exist for a tenant/type in the given status.
func (s *Store) CountJobs(ctx context.Context, tenantID, documentType string, status models.JobStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synthesis_jobs WHERE tenant_id = ? AND document_type = ? AND status = ?`,
		tenantID, documentType, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.SynthesisJob, error) {
	var (
		job         models.SynthesisJob
		ids         string
		completedAt sql.NullTime
		durationMs  sql.NullInt64
		errMsg      sql.NullString
		docID       sql.NullString
	)
	err := row.Scan(&job.ID, &job.TenantID, &job.DocumentType, &job.Status, &ids, &job.SourceHash,
		&job.BaseVersion, &job.Forced, &job.ModelUsed, &job.TokensUsed, &job.StartedAt,
		&completedAt, &durationMs, &errMsg, &docID)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &job.SourceDocumentIDs); err != nil {
		return nil, fmt.Errorf("decode source ids of job %s: %w", job.ID, err)
	}
	switch job.Status {
	case models.JobRunning, models.JobCompleted, models.JobFailed:
	default:
		return nil, fmt.Errorf("job %s has unknown status %q", job.ID, job.Status)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if durationMs.Valid {
		d := durationMs.Int64
		job.DurationMs = &d
	}
	job.ErrorMessage = errMsg.String
	job.SynthesizedDocumentID = docID.String
	return &job, nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotRunning
	}
	return nil
}
