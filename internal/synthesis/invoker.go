package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsynth/internal/models"
	"docsynth/internal/service/ai"
)

const (
	DefaultPersona = "You are a senior marketing strategist. You turn raw client material into clear, " +
		"structured foundational documents. Use only facts present in the source documents and keep the client's own terminology."

	sourcesPlaceholder = "{{sources}}"
	sourceSeparator    = "\n\n---\n\n"
)

// Invocation is a successful provider answer.
type Invocation struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
}

// Invoker shapes the synthesis request and calls the provider under a hard timeout.
type Invoker struct {
	completer ai.Completer
	persona   string
	timeout   time.Duration
}

func NewInvoker(completer ai.Completer, persona string, timeout time.Duration) *Invoker {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return &Invoker{completer: completer, persona: persona, timeout: timeout}
}

func (i *Invoker) Invoke(ctx context.Context, cfg models.TransformerConfig, docs []models.SourceDocument) (*Invocation, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	out, err := i.completer.Complete(ctx, ai.Request{
		Model: cfg.Model,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: i.persona},
			{Role: ai.RoleUser, Content: BuildPrompt(cfg.Prompt, docs)},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, providerError(err)
	}
	return &Invocation{
		Content:   out.Content,
		Model:     cfg.Model,
		TokensIn:  out.TokensIn,
		TokensOut: out.TokensOut,
	}, nil
}

// BuildPrompt substitutes the rendered sources for {{sources}}. Prompts without the
// placeholder get the sources appended after a blank line.
func BuildPrompt(prompt string, docs []models.SourceDocument) string {
	rendered := renderSources(docs)
	if strings.Contains(prompt, sourcesPlaceholder) {
		return strings.ReplaceAll(prompt, sourcesPlaceholder, rendered)
	}
	return strings.TrimRight(prompt, "\n") + "\n\n" + rendered
}

func renderSources(docs []models.SourceDocument) string {
	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		parts = append(parts, fmt.Sprintf("### Document %d: %s\n%s", i+1, doc.Title, doc.Content))
	}
	return strings.Join(parts, sourceSeparator)
}

func providerError(err error) error {
	var statusErr *ai.StatusError
	switch {
	case errors.As(err, &statusErr):
		return &ProviderError{HTTPStatus: statusErr.StatusCode, Body: statusErr.Body, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Body: "provider call timed out", Err: err}
	default:
		return &ProviderError{Body: err.Error(), Err: err}
	}
}
