package generation

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

const draftingSystemPrompt = `You are a healthcare contract drafting assistant.
Produce complete, formally structured contract text with numbered
sections matching the requested section list. Output plain text only.`

// AnthropicProvider drafts contract text through the Anthropic API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider with the given API key.
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicProvider{
		client: &client,
		model:  model,
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete drafts text for the given prompt.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: draftingSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
