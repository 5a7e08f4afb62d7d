package ai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeAdvisor implements Advisor using Anthropic's Claude.
type ClaudeAdvisor struct {
	client *anthropic.Client
	model  string
}

// NewClaudeAdvisor creates a Claude advisor. The API key is read from
// WEBPROBE_ANTHROPIC_KEY or ANTHROPIC_API_KEY.
func NewClaudeAdvisor(model string) (*ClaudeAdvisor, error) {
	apiKey := os.Getenv("WEBPROBE_ANTHROPIC_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("WEBPROBE_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeAdvisor{
		client: &client,
		model:  model,
	}, nil
}

// Advise implements Advisor.
func (a *ClaudeAdvisor) Advise(ctx context.Context, report Report) ([]Advice, error) {
	if report.Empty() {
		return nil, nil
	}
	userPrompt, err := buildUserPrompt(report)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, errors.New("empty response from Claude")
	}

	advice, err := parseAdviceJSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Claude response as JSON: %w\nResponse: %s", err, responseText)
	}
	return advice, nil
}
