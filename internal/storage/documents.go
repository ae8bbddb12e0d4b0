package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docsynth/internal/models"
)

// AssignedDocuments lists the tenant's documents for a type in display order.
func (s *Store) AssignedDocuments(ctx context.Context, tenantID, documentType string) ([]models.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.tenant_id, d.title, d.content, d.updated_at
		 FROM document_assignments a
		 JOIN source_documents d ON d.id = a.document_id
		 WHERE a.tenant_id = ? AND a.document_type = ?
		 ORDER BY a.display_order ASC, d.id ASC`,
		tenantID, documentType,
	)
	if err != nil {
		return nil, fmt.Errorf("list assigned documents: %w", err)
	}
	defer rows.Close()

	var docs []models.SourceDocument
	for rows.Next() {
		var d models.SourceDocument
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AssignedDocumentTypes returns every document type the tenant has at least one assignment for.
func (s *Store) AssignedDocumentTypes(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT document_type FROM document_assignments WHERE tenant_id = ? ORDER BY document_type ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// UpsertDocument stores a source document. A zero UpdatedAt is stamped with the current time.
func (s *Store) UpsertDocument(ctx context.Context, doc models.SourceDocument) error {
	if doc.ID == "" || doc.TenantID == "" {
		return errors.New("document id and tenant id are required")
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_documents (id, tenant_id, title, content, updated_at) VALUES (?, ?, ?, ?, ?)`+
			s.upsert([]string{"id"}, []string{"tenant_id", "title", "content", "updated_at"}),
		doc.ID, doc.TenantID, doc.Title, doc.Content, doc.UpdatedAt.UTC().Truncate(time.Microsecond),
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Assign adds (or reorders) a document in a tenant's set for a document type.
func (s *Store) Assign(ctx context.Context, a models.Assignment) error {
	if a.TenantID == "" || a.DocumentType == "" || a.DocumentID == "" {
		return errors.New("tenant, document type and document id are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_assignments (tenant_id, document_type, document_id, display_order) VALUES (?, ?, ?, ?)`+
			s.upsert([]string{"tenant_id", "document_type", "document_id"}, []string{"display_order"}),
		a.TenantID, a.DocumentType, a.DocumentID, a.DisplayOrder,
	)
	if err != nil {
		return fmt.Errorf("assign document: %w", err)
	}
	return nil
}
