package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docsynth/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const defaultClaudeMaxTokens = 4000

// NewCompleter builds the Completer for one configured provider.
// Kind defaults to the provider's name when unset.
func NewCompleter(ctx context.Context, name string, provCfg config.ProviderConfig, timeout time.Duration) (Completer, error) {
	kind := strings.ToLower(strings.TrimSpace(provCfg.Kind))
	if kind == "" {
		kind = strings.ToLower(name)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch kind {
	case "gateway":
		return NewGateway(provCfg.BaseURL, provCfg.APIKey, &http.Client{Timeout: timeout})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
			Timeout: timeout,
		})
	case "gemini":
		clientCfg := &genai.ClientConfig{APIKey: provCfg.APIKey}
		if provCfg.VertexProject != "" {
			clientCfg = &genai.ClientConfig{
				Backend:  genai.BackendVertexAI,
				Project:  provCfg.VertexProject,
				Location: provCfg.VertexLocation,
			}
		}
		client, cerr := genai.NewClient(ctx, clientCfg)
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: defaultClaudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", kind, err)
	}
	return NewChatModelCompleter(chatModel), nil
}
