package ai

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completion is the provider's answer with usage. Token counts are 0 when the provider omits usage.
type Completion struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// Completer is the boundary to an LLM provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// StatusError carries a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}
