package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 4096

// Gateway talks to an OpenAI-compatible chat-completions endpoint over HTTP.
type Gateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGateway builds a gateway client. The API key is fixed at construction.
func NewGateway(baseURL, apiKey string, client *http.Client) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base_url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

type gatewayRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type gatewayResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete posts the request to {baseURL}/chat/completions.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	body, err := json.Marshal(gatewayRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: "response contained no choices"}
	}
	out := &Completion{Content: decoded.Choices[0].Message.Content}
	if decoded.Usage != nil {
		out.TokensIn = decoded.Usage.PromptTokens
		out.TokensOut = decoded.Usage.CompletionTokens
	}
	return out, nil
}
