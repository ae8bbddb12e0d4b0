package synthesis

import (
	"context"
	"strings"

	"docsynth/internal/config"
	"docsynth/internal/models"
)

// Defaults apply when only the document type's schema prompt is configured.
// A nil Temperature means config.DefaultFallbackTemperature; 0 is a valid setting.
type Defaults struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

func (d Defaults) temperature() float64 {
	if d.Temperature == nil {
		return config.DefaultFallbackTemperature
	}
	return *d.Temperature
}

// TransformerResolver picks the prompt and model parameters for a (tenant, type) pair.
// A tenant override replaces the default as a whole; fields are never merged.
type TransformerResolver struct {
	store    TransformerStore
	defaults Defaults
}

func NewTransformerResolver(store TransformerStore, defaults Defaults) *TransformerResolver {
	return &TransformerResolver{store: store, defaults: defaults}
}

func (r *TransformerResolver) Resolve(ctx context.Context, tenantID, documentType string) (*models.TransformerConfig, error) {
	override, err := r.store.TenantTransformer(ctx, tenantID, documentType)
	if err != nil {
		return nil, &PersistenceError{Op: "load tenant transformer", Err: err}
	}
	if override != nil && strings.TrimSpace(override.Prompt) != "" {
		cfg := *override
		cfg.Source = models.TransformerTenant
		return &cfg, nil
	}

	prompt, err := r.store.SchemaPrompt(ctx, documentType)
	if err != nil {
		return nil, &PersistenceError{Op: "load document schema", Err: err}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, &NoTransformerConfiguredError{TenantID: tenantID, DocumentType: documentType}
	}
	return &models.TransformerConfig{
		Prompt:      prompt,
		Model:       r.defaults.Model,
		Temperature: r.defaults.temperature(),
		MaxTokens:   r.defaults.MaxTokens,
		Source:      models.TransformerDefault,
	}, nil
}
