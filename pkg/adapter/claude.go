package adapter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

// ClaudeClient implements LLM on top of the Anthropic API. The Anthropic
// API has no embedding endpoint, so callers pair it with a separate
// Embedder.
type ClaudeClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

type ClaudeOption func(*ClaudeClient)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeClient) {
		c.model = anthropic.Model(model)
	}
}

func WithMaxTokens(n int64) ClaudeOption {
	return func(c *ClaudeClient) {
		c.maxTokens = n
	}
}

func NewClaude(apiKey string, opts ...ClaudeOption) *ClaudeClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	c := &ClaudeClient{
		client:    &client,
		model:     anthropic.Model("claude-sonnet-4-0"),
		maxTokens: 1024,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ LLM = (*ClaudeClient)(nil)

func (c *ClaudeClient) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userContent)),
		},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create message")
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.AsText().Text)
		}
	}

	if sb.Len() == 0 {
		return "", goerr.New("empty response from claude")
	}

	return sb.String(), nil
}
