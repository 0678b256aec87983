package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBackends(t *testing.T) {
	t.Run("both", func(t *testing.T) {
		local, remote, err := NewBackends(BackendsConfig{
			Local:  OpenAIConfig{Endpoint: "http://localhost:11434/v1/", Model: "qwen2.5-coder"},
			Remote: AnthropicConfig{APIKey: "sk-test", Model: "claude-sonnet-4-5"},
		}, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, local)
		require.NotNil(t, remote)
		assert.Equal(t, "local", local.Name())
		assert.Equal(t, "remote", remote.Name())
		assert.Equal(t, "qwen2.5-coder", local.(*OpenAIBackend).Model())
	})

	t.Run("local only", func(t *testing.T) {
		local, remote, err := NewBackends(BackendsConfig{
			Local: OpenAIConfig{Endpoint: "http://localhost:11434/v1", Model: "qwen2.5-coder"},
		}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, local)
		assert.Nil(t, remote)
	})

	t.Run("none", func(t *testing.T) {
		_, _, err := NewBackends(BackendsConfig{}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestNewBackendValidation(t *testing.T) {
	_, err := NewOpenAIBackend(OpenAIConfig{Model: "m"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewOpenAIBackend(OpenAIConfig{Endpoint: "http://x"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewAnthropicBackend(AnthropicConfig{Model: "m"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewAnthropicBackend(AnthropicConfig{APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	ok := Probe(context.Background(), NewMockBackend("ollama", "ok"))
	assert.True(t, ok.Success)
	assert.Equal(t, "ollama", ok.Backend)

	failed := Probe(context.Background(), &MockBackend{
		BackendName: "claude",
		CompleteFunc: func(context.Context, Prompt, time.Time) (string, error) {
			return "", errors.New("status code: 401, unauthorized")
		},
	})
	assert.False(t, failed.Success)
	assert.Equal(t, ErrorTypeAuth, failed.ErrorType)
	assert.Contains(t, failed.Message, "API key")

	missing := Probe(context.Background(), nil)
	assert.False(t, missing.Success)
	assert.Equal(t, "not configured", missing.Message)
}

func TestRouter_Probe(t *testing.T) {
	r := NewRouter(NewMockBackend("ollama", "ok"), nil, DefaultRouterConfig(), nil, zap.NewNop())
	results := r.Probe(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, "remote", results[1].Backend)
	assert.False(t, results[1].Success)
}
