package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docsynth/internal/models"
)

// TenantTransformer returns the tenant override for a document type, or nil when none exists.
func (s *Store) TenantTransformer(ctx context.Context, tenantID, documentType string) (*models.TransformerConfig, error) {
	var cfg models.TransformerConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt, model, temperature, max_tokens FROM tenant_transformers WHERE tenant_id = ? AND document_type = ?`,
		tenantID, documentType,
	).Scan(&cfg.Prompt, &cfg.Model, &cfg.Temperature, &cfg.MaxTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup tenant transformer: %w", err)
	}
	cfg.Source = models.TransformerTenant
	return &cfg, nil
}

// SchemaPrompt returns the global synthesis prompt for a document type, or "" when unset.
func (s *Store) SchemaPrompt(ctx context.Context, documentType string) (string, error) {
	var prompt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT synthesis_prompt FROM document_schemas WHERE document_type = ?`, documentType,
	).Scan(&prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup schema prompt: %w", err)
	}
	return prompt.String, nil
}

func (s *Store) UpsertSchema(ctx context.Context, schema models.DocumentSchema) error {
	if schema.DocumentType == "" {
		return errors.New("document type is required")
	}
	name := schema.Name
	if name == "" {
		name = schema.DocumentType
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_schemas (document_type, name, synthesis_prompt, updated_at) VALUES (?, ?, ?, ?)`+
			s.upsert([]string{"document_type"}, []string{"name", "synthesis_prompt", "updated_at"}),
		schema.DocumentType, name, nullString(schema.SynthesisPrompt), s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert schema: %w", err)
	}
	return nil
}

func (s *Store) UpsertTenantTransformer(ctx context.Context, tenantID, documentType string, cfg models.TransformerConfig) error {
	if tenantID == "" || documentType == "" {
		return errors.New("tenant id and document type are required")
	}
	if cfg.Prompt == "" || cfg.Model == "" {
		return errors.New("transformer prompt and model are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_transformers (tenant_id, document_type, prompt, model, temperature, max_tokens, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`+
			s.upsert([]string{"tenant_id", "document_type"}, []string{"prompt", "model", "temperature", "max_tokens", "updated_at"}),
		tenantID, documentType, cfg.Prompt, cfg.Model, cfg.Temperature, cfg.MaxTokens, s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert tenant transformer: %w", err)
	}
	return nil
}
