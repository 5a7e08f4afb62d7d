package ai

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdvisor implements Advisor using OpenAI.
type OpenAIAdvisor struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdvisor creates an OpenAI advisor. The API key is read from
// WEBPROBE_OPENAI_KEY or OPENAI_API_KEY.
func NewOpenAIAdvisor(model string) (*OpenAIAdvisor, error) {
	apiKey := os.Getenv("WEBPROBE_OPENAI_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("WEBPROBE_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	if model == "" {
		model = openai.GPT4o
	}

	return &OpenAIAdvisor{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Advise implements Advisor.
func (a *OpenAIAdvisor) Advise(ctx context.Context, report Report) ([]Advice, error) {
	if report.Empty() {
		return nil, nil
	}
	userPrompt, err := buildUserPrompt(report)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from OpenAI")
	}

	responseText := resp.Choices[0].Message.Content
	advice, err := parseAdviceJSON(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response as JSON: %w\nResponse: %s", err, responseText)
	}
	return advice, nil
}
