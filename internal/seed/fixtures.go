package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"docsynth/internal/models"
)

// Store is the write side seeding needs. *storage.Store satisfies it.
type Store interface {
	UpsertTenant(ctx context.Context, t models.Tenant) error
	UpsertSchema(ctx context.Context, schema models.DocumentSchema) error
	UpsertTenantTransformer(ctx context.Context, tenantID, documentType string, cfg models.TransformerConfig) error
	UpsertDocument(ctx context.Context, doc models.SourceDocument) error
	Assign(ctx context.Context, a models.Assignment) error
}

type Fixtures struct {
	Tenants      []TenantFixture      `yaml:"tenants"`
	Schemas      []SchemaFixture      `yaml:"schemas"`
	Transformers []TransformerFixture `yaml:"transformers"`
	Documents    []DocumentFixture    `yaml:"documents"`
}

type TenantFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SchemaFixture struct {
	DocumentType    string `yaml:"document_type"`
	Name            string `yaml:"name"`
	SynthesisPrompt string `yaml:"synthesis_prompt"`
}

type TransformerFixture struct {
	TenantID     string  `yaml:"tenant_id"`
	DocumentType string  `yaml:"document_type"`
	Prompt       string  `yaml:"prompt"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// DocumentFixture is assigned to every type in AssignTo, in file order.
type DocumentFixture struct {
	ID        string    `yaml:"id"`
	TenantID  string    `yaml:"tenant_id"`
	Title     string    `yaml:"title"`
	Content   string    `yaml:"content"`
	UpdatedAt time.Time `yaml:"updated_at"`
	AssignTo  []string  `yaml:"assign_to"`
}

// Summary counts what a seed run wrote.
type Summary struct {
	Tenants      int `json:"tenants"`
	Schemas      int `json:"schemas"`
	Transformers int `json:"transformers"`
	Documents    int `json:"documents"`
	Assignments  int `json:"assignments"`
}

func LoadFixtures(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fx Fixtures
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &fx, nil
}

// Apply upserts fixtures in dependency order. Running it twice is harmless.
func Apply(ctx context.Context, store Store, fx *Fixtures) (*Summary, error) {
	var sum Summary
	for _, t := range fx.Tenants {
		if err := store.UpsertTenant(ctx, models.Tenant{ID: t.ID, Name: t.Name}); err != nil {
			return &sum, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		sum.Tenants++
	}
	for _, s := range fx.Schemas {
		schema := models.DocumentSchema{DocumentType: s.DocumentType, Name: s.Name, SynthesisPrompt: s.SynthesisPrompt}
		if err := store.UpsertSchema(ctx, schema); err != nil {
			return &sum, fmt.Errorf("schema %s: %w", s.DocumentType, err)
		}
		sum.Schemas++
	}
	for _, tr := range fx.Transformers {
		cfg := models.TransformerConfig{Prompt: tr.Prompt, Model: tr.Model, Temperature: tr.Temperature, MaxTokens: tr.MaxTokens}
		if err := store.UpsertTenantTransformer(ctx, tr.TenantID, tr.DocumentType, cfg); err != nil {
			return &sum, fmt.Errorf("transformer %s/%s: %w", tr.TenantID, tr.DocumentType, err)
		}
		sum.Transformers++
	}
	order := make(map[string]int)
	for _, d := range fx.Documents {
		doc := models.SourceDocument{ID: d.ID, TenantID: d.TenantID, Title: d.Title, Content: d.Content, UpdatedAt: d.UpdatedAt}
		if err := store.UpsertDocument(ctx, doc); err != nil {
			return &sum, fmt.Errorf("document %s: %w", d.ID, err)
		}
		sum.Documents++
		for _, documentType := range d.AssignTo {
			key := d.TenantID + "|" + documentType
			a := models.Assignment{TenantID: d.TenantID, DocumentType: documentType, DocumentID: d.ID, DisplayOrder: order[key]}
			if err := store.Assign(ctx, a); err != nil {
				return &sum, fmt.Errorf("assign %s to %s: %w", d.ID, documentType, err)
			}
			order[key]++
			sum.Assignments++
		}
	}
	return &sum, nil
}
