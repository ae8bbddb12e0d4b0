package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelCompleter adapts an eino chat model to Completer.
type ChatModelCompleter struct {
	chatModel model.BaseChatModel
}

func NewChatModelCompleter(chatModel model.BaseChatModel) *ChatModelCompleter {
	return &ChatModelCompleter{chatModel: chatModel}
}

func (c *ChatModelCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c == nil || c.chatModel == nil {
		return nil, errors.New("chat model not initialized")
	}
	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	resp, err := c.chatModel.Generate(ctx, convertMessages(req.Messages), opts...)
	if err != nil {
		return nil, fmt.Errorf("generate completion: %w", err)
	}
	if resp == nil {
		return nil, errors.New("generate completion: empty response")
	}
	out := &Completion{Content: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		out.TokensIn = resp.ResponseMeta.Usage.PromptTokens
		out.TokensOut = resp.ResponseMeta.Usage.CompletionTokens
	}
	return out, nil
}

func convertMessages(in []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(in))
	for _, msg := range in {
		var role schema.RoleType
		switch msg.Role {
		case RoleSystem:
			role = schema.System
		case RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: msg.Content})
	}
	return out
}
