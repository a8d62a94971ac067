package openrouter

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Generator speaks the OpenAI-compatible chat API against one OpenRouter
// model. The fallback cascade holds one Generator per configured model.
type Generator struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Generator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &Generator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func NewWithClient(client *openai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Name() string {
	return "openrouter/" + g.model
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openrouter %s: %w", g.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter %s: empty choice list", g.model)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("openrouter %s: empty completion", g.model)
	}
	return answer, nil
}
