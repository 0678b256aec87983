package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicConfig configures the remote backend.
type AnthropicConfig struct {
	Name    string // Backend name reported in routing records, default "remote"
	APIKey  string
	Model   string
	BaseURL string // Optional override, used by tests and proxies
}

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client *anthropic.Client
	name   string
	model  string
	logger *zap.Logger
}

var _ Backend = (*AnthropicBackend)(nil)

// NewAnthropicBackend creates the remote backend.
func NewAnthropicBackend(cfg AnthropicConfig, logger *zap.Logger) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Name == "" {
		cfg.Name = string(models.BackendRemote)
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	return &AnthropicBackend{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		name:   cfg.Name,
		model:  cfg.Model,
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return b.name }

// Model returns the configured model name.
func (b *AnthropicBackend) Model() string { return b.model }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, prompt Prompt, deadline time.Time) (string, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()

	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := float32(prompt.Temperature)
	user := prompt.User

	start := time.Now()
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(b.model),
		MaxTokens:   maxTokens,
		System:      prompt.System,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &user},
			}},
		},
	})
	if err != nil {
		b.logger.Warn("Messages request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		e := ClassifyError(err)
		e.Backend, e.Model = b.name, b.model
		return "", e
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		e := NewError(ErrorTypeEmpty, "no text content in response", true, nil)
		e.Backend, e.Model = b.name, b.model
		return "", e
	}

	b.logger.Debug("Messages request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return text, nil
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}
