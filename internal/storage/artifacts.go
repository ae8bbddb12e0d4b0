package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docsynth/internal/models"
)

const artifactColumns = `id, tenant_id, document_type, title, slug, content, version, previous_version_id,
	sources_hash, approval_status, requires_review, synthesis_job_id, token_count, tier, created_at`

// LatestArtifact returns the highest version for (tenant, type), or nil when none exists.
func (s *Store) LatestArtifact(ctx context.Context, tenantID, documentType string) (*models.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM compiled_documents
		 WHERE tenant_id = ? AND document_type = ?
		 ORDER BY version DESC LIMIT 1`,
		tenantID, documentType,
	)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest artifact: %w", err)
	}
	return a, nil
}

// ArtifactByID returns sql.ErrNoRows for unknown ids.
func (s *Store) ArtifactByID(ctx context.Context, id string) (*models.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM compiled_documents WHERE id = ?`, id)
	return scanArtifact(row)
}

// InsertArtifact persists a new version. A clash on (tenant, type, version) or slug returns ErrDuplicate.
func (s *Store) InsertArtifact(ctx context.Context, a *models.Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compiled_documents (id, tenant_id, document_type, title, slug, content, version,
			previous_version_id, sources_hash, approval_status, requires_review, synthesis_job_id, token_count, tier, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.DocumentType, a.Title, a.Slug, a.Content, a.Version,
		nullString(a.PreviousVersionID), a.SourcesHash, a.ApprovalStatus, a.RequiresReview,
		a.SynthesisJobID, a.TokenCount, a.Tier, a.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// ArtifactHistory lists versions newest first. limit <= 0 returns all of them.
func (s *Store) ArtifactHistory(ctx context.Context, tenantID, documentType string, limit int) ([]models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM compiled_documents
		 WHERE tenant_id = ? AND document_type = ?
		 ORDER BY version DESC`
	args := []any{tenantID, documentType}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("artifact history: %w", err)
	}
	defer rows.Close()

	var history []models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		history = append(history, *a)
	}
	return history, rows.Err()
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var (
		a    models.Artifact
		prev sql.NullString
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.DocumentType, &a.Title, &a.Slug, &a.Content, &a.Version, &prev,
		&a.SourcesHash, &a.ApprovalStatus, &a.RequiresReview, &a.SynthesisJobID, &a.TokenCount, &a.Tier, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	switch a.ApprovalStatus {
	case models.ApprovalDraft, models.ApprovalPendingReview, models.ApprovalApproved:
	default:
		return nil, fmt.Errorf("artifact %s has unknown approval status %q", a.ID, a.ApprovalStatus)
	}
	a.PreviousVersionID = prev.String
	return &a, nil
}
