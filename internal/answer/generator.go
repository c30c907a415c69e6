// Package answer turns retrieval results into a grounded, cited answer by
// prompting a chat model over the top-ranked chunks.
package answer

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Generator produces a raw completion for a prompt. The assembler owns the
// prompt contract and parsing; the generator only talks to the model.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
// Works with api.openai.com as well as local servers (Ollama, llama.cpp)
// that speak the same protocol via BaseURL.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// GeneratorConfig configures an OpenAIGenerator.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOpenAIGenerator creates a generator from cfg. Model defaults to
// gpt-4o-mini, timeout to 120s.
func NewOpenAIGenerator(cfg GeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("answer API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
	}, nil
}

// Complete sends a single user message and returns the model's reply.
// Temperature is pinned to zero; the prompt demands verbatim quoting and
// sampling variance works against that.
func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", models.ErrCollaborator, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion: no choices returned", models.ErrCollaborator)
	}
	return resp.Choices[0].Message.Content, nil
}
