package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// BackendsConfig holds the settings for both backends. A backend whose
// required settings are empty is left unconfigured.
type BackendsConfig struct {
	Local  OpenAIConfig
	Remote AnthropicConfig
}

// NewBackends creates the configured backends. A nil Backend means that side
// is not configured; it is an error only when neither is.
func NewBackends(cfg BackendsConfig, logger *zap.Logger) (local, remote Backend, err error) {
	if cfg.Local.Endpoint != "" && cfg.Local.Model != "" {
		b, err := NewOpenAIBackend(cfg.Local, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create local backend: %w", err)
		}
		local = b
	}

	if cfg.Remote.APIKey != "" && cfg.Remote.Model != "" {
		b, err := NewAnthropicBackend(cfg.Remote, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create remote backend: %w", err)
		}
		remote = b
	}

	if local == nil && remote == nil {
		return nil, nil, fmt.Errorf("no generation backend configured: set llm.local.endpoint or ANTHROPIC_API_KEY")
	}
	return local, remote, nil
}
