package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient implements the Client interface using the official
// Anthropic SDK.
type anthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &anthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Complete sends a message request to Anthropic.
func (c *anthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return Completion{
				Text:      block.Text,
				TokensIn:  int(message.Usage.InputTokens),
				TokensOut: int(message.Usage.OutputTokens),
			}, nil
		}
	}

	return Completion{}, fmt.Errorf("no text content in response")
}
