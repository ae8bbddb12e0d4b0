package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docsynth/internal/models"
	"docsynth/internal/service/ai"
)

func TestSourceSetResolver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	putDocument(t, s, "c", "Blank", "   ", baseTime, 2)
	r := NewSourceSetResolver(s)

	docs, err := r.Resolve(ctx, "acme", "icp", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("expected [a b] in display order, got %+v", docs)
	}

	docs, err = r.Resolve(ctx, "acme", "icp", []string{"b", "missing"})
	if err != nil || len(docs) != 1 || docs[0].ID != "b" {
		t.Fatalf("subset not intersected: %+v %v", docs, err)
	}

	_, err = r.Resolve(ctx, "acme", "icp", []string{"c"})
	var empty *EmptySourceSetError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptySourceSetError, got %v", err)
	}
	if _, err := r.Resolve(ctx, "acme", "voice", nil); !errors.As(err, &empty) {
		t.Fatalf("expected EmptySourceSetError for unassigned type, got %v", err)
	}
}

func TestTransformerResolver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	temperature := 0.7
	r := NewTransformerResolver(s, Defaults{Model: "gpt-4o", Temperature: &temperature, MaxTokens: 4000})

	cfg, err := r.Resolve(ctx, "acme", "icp")
	if err != nil {
		t.Fatalf("Resolve default: %v", err)
	}
	if cfg.Source != models.TransformerDefault || cfg.Model != "gpt-4o" || cfg.MaxTokens != 4000 || cfg.Temperature != 0.7 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}

	override := models.TransformerConfig{Prompt: "Tenant prompt {{sources}}", Model: "claude-x", Temperature: 0.1}
	if err := s.UpsertTenantTransformer(ctx, "acme", "icp", override); err != nil {
		t.Fatalf("UpsertTenantTransformer: %v", err)
	}
	cfg, err = r.Resolve(ctx, "acme", "icp")
	if err != nil {
		t.Fatalf("Resolve override: %v", err)
	}
	// no field-level merge: the override's zero MaxTokens is kept
	if cfg.Source != models.TransformerTenant || cfg.Model != "claude-x" || cfg.MaxTokens != 0 || cfg.Prompt != override.Prompt {
		t.Fatalf("override should replace defaults wholesale: %+v", cfg)
	}

	_, err = r.Resolve(ctx, "acme", "voice")
	var none *NoTransformerConfiguredError
	if !errors.As(err, &none) {
		t.Fatalf("expected NoTransformerConfiguredError, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	docs := []models.SourceDocument{
		{ID: "a", Title: "Notes", Content: "one"},
		{ID: "b", Title: "Survey", Content: "two"},
	}
	got := BuildPrompt("Summarize:\n{{sources}}\nEnd", docs)
	want := "Summarize:\n### Document 1: Notes\none\n\n---\n\n### Document 2: Survey\ntwo\nEnd"
	if got != want {
		t.Fatalf("BuildPrompt mismatch:\n%q\nwant\n%q", got, want)
	}
	appended := BuildPrompt("No placeholder\n", docs[:1])
	if appended != "No placeholder\n\n### Document 1: Notes\none" {
		t.Fatalf("sources should be appended, got %q", appended)
	}
}

func TestInvokerShapesRequest(t *testing.T) {
	fake := &fakeCompleter{content: "done"}
	inv := NewInvoker(fake, "", time.Second)
	cfg := models.TransformerConfig{Prompt: "P {{sources}}", Model: "m", Temperature: 0.3, MaxTokens: 50}
	out, err := inv.Invoke(context.Background(), cfg, []models.SourceDocument{{Title: "T", Content: "C"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Content != "done" || out.TokensIn != 10 || out.TokensOut != 20 || out.Model != "m" {
		t.Fatalf("unexpected invocation: %+v", out)
	}
	req := fake.lastReq
	if len(req.Messages) != 2 || req.Messages[0].Role != ai.RoleSystem || req.Messages[0].Content != DefaultPersona {
		t.Fatalf("persona message missing: %+v", req.Messages)
	}
	if req.Messages[1].Content != "P ### Document 1: T\nC" || req.MaxTokens != 50 || req.Temperature != 0.3 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestInvokerTranslatesErrors(t *testing.T) {
	fake := &fakeCompleter{err: &ai.StatusError{StatusCode: 503, Body: "overloaded"}}
	inv := NewInvoker(fake, "persona", time.Second)
	_, err := inv.Invoke(context.Background(), models.TransformerConfig{Prompt: "p"}, nil)
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.HTTPStatus != 503 || provErr.Body != "overloaded" {
		t.Fatalf("expected ProviderError 503, got %v", err)
	}

	blocking := &fakeCompleter{release: make(chan struct{})}
	inv = NewInvoker(blocking, "persona", 20*time.Millisecond)
	_, err = inv.Invoke(context.Background(), models.TransformerConfig{Prompt: "p"}, nil)
	if !errors.As(err, &provErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timed out ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestVersionerMetadata(t *testing.T) {
	if got := Title("brand-guidelines", "Acme"); got != "Brand Guidelines - Acme" {
		t.Fatalf("Title = %q", got)
	}
	if got := Title("ideal_customer_profile", ""); got != "Ideal Customer Profile" {
		t.Fatalf("Title = %q", got)
	}
	if got := Slug("icp", 3, time.UnixMilli(1700000000123)); got != "icp-v3-1700000000123" {
		t.Fatalf("Slug = %q", got)
	}
	v := NewVersioner(nil, "brand-guidelines")
	if v.Tier("brand-guidelines") != 2 || v.Tier("icp") != 1 {
		t.Fatalf("unexpected tiers")
	}
}
