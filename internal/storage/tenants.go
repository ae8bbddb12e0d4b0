package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docsynth/internal/models"
)

// GetTenant returns sql.ErrNoRows when the tenant does not exist.
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTenant creates the tenant or renames an existing one.
func (s *Store) UpsertTenant(ctx context.Context, t models.Tenant) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return errors.New("tenant id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`+
			s.upsert([]string{"id"}, []string{"name"}),
		t.ID, t.Name, s.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}
