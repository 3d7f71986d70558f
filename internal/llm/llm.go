package llm

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/codeboard/internal/llm/prompts"
	"github.com/pavelanni/codeboard/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// Client wraps an OpenAI-compatible API client that writes hints for failed
// submissions.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client using the given hint prompt variant.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if err := prompts.Load(promptFS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint answers by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Hint asks the model for a short hint explaining why submission failed.
func (c *Client) Hint(ctx context.Context, q model.QuestionInfo, submission string, v model.Verdict, lang string) (string, error) {
	systemPrompt, err := prompts.BuildHintPrompt(c.variant, q, submission, v, lang)
	if err != nil {
		return "", fmt.Errorf("build hint prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Give me a hint."},
		},
		Temperature: 0.4,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	hint := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM hint", "question_id", q.ID, "tokens", resp.Usage.TotalTokens)
	if hint == "" {
		return "", fmt.Errorf("LLM returned an empty hint")
	}
	return hint, nil
}
