package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible backend such as Ollama or vLLM.
type OpenAIConfig struct {
	Name     string // Backend name reported in routing records, default "local"
	Endpoint string // Base URL, e.g. "http://localhost:11434/v1"
	Model    string
	APIKey   string // Optional for local endpoints
	Thinking bool   // Passed as enable_thinking to models that support it
}

// OpenAIBackend talks to an OpenAI-compatible chat completion endpoint.
type OpenAIBackend struct {
	client   *openai.Client
	name     string
	endpoint string
	model    string
	thinking bool
	logger   *zap.Logger
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a backend for an OpenAI-compatible endpoint.
func NewOpenAIBackend(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Name == "" {
		cfg.Name = string(models.BackendLocal)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIBackend{
		client:   openai.NewClientWithConfig(clientConfig),
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		thinking: cfg.Thinking,
		logger:   logger.Named("llm-openai"),
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return b.name }

// Model returns the configured model name.
func (b *OpenAIBackend) Model() string { return b.model }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt Prompt, deadline time.Time) (string, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
		{Role: openai.ChatMessageRoleUser, Content: prompt.User},
	}

	b.logger.Debug("Completion request",
		zap.String("model", b.model),
		zap.Int("prompt_len", prompt.Len()),
		zap.Float64("temperature", prompt.Temperature))

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: float32(prompt.Temperature),
		MaxTokens:   prompt.MaxTokens,
		ChatTemplateKwargs: map[string]any{
			"enable_thinking": b.thinking,
		},
	})
	if err != nil {
		b.logger.Warn("Completion request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", b.parseError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		e := NewError(ErrorTypeEmpty, "no content in response", true, nil)
		e.Backend, e.Model = b.name, b.model
		return "", e
	}

	b.logger.Debug("Completion request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

func (b *OpenAIBackend) parseError(err error) error {
	e := ClassifyError(err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		e.StatusCode = apiErr.HTTPStatusCode
	}
	e.Backend, e.Model = b.name, b.model
	return e
}
