package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for datagenie.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Catalog   CatalogConfig   `yaml:"catalog"`
	Examples  ExamplesConfig  `yaml:"examples"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Redis     RedisConfig     `yaml:"redis"`
}

// CatalogConfig selects where the schema catalog is loaded from.
type CatalogConfig struct {
	// Source is a registered catalog source type: file, postgres or sqlserver.
	Source    string         `yaml:"source" env:"CATALOG_SOURCE" env-default:"file"`
	Path      string         `yaml:"path" env:"CATALOG_PATH" env-default:"catalog.yaml"`
	InferTags bool           `yaml:"infer_tags" env:"CATALOG_INFER_TAGS" env-default:"true"`
	Schemas   []string       `yaml:"schemas" env:"CATALOG_SCHEMAS" env-separator:","`
	Database  DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds connection settings for live catalog sources.
// A zero Port uses the source's default port.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT"`
	User     string `yaml:"user" env:"PGUSER" env-default:"datagenie"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"analytics"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ExamplesConfig locates the store of previously answered questions.
type ExamplesConfig struct {
	Path string `yaml:"path" env:"EXAMPLES_DB" env-default:"examples.db"`
}

// EmbeddingConfig selects the embedder used for example retrieval.
type EmbeddingConfig struct {
	// Provider is "hash" for offline feature hashing or "openai" for any
	// OpenAI-compatible embedding endpoint.
	Provider string `yaml:"provider" env:"EMBEDDING_PROVIDER" env-default:"hash"`
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"EMBEDDING_MODEL" env-default:""`
	Dims     int    `yaml:"dims" env:"EMBEDDING_DIMS" env-default:"256"`
	APIKey   string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
}

// LLMConfig configures both generation backends and the router.
type LLMConfig struct {
	Local  LocalLLMConfig  `yaml:"local"`
	Remote RemoteLLMConfig `yaml:"remote"`

	LocalTimeout     time.Duration `yaml:"local_timeout" env:"LLM_LOCAL_TIMEOUT" env-default:"8s"`
	RemoteTimeout    time.Duration `yaml:"remote_timeout" env:"LLM_REMOTE_TIMEOUT" env-default:"30s"`
	LocalRetries     int           `yaml:"local_retries" env:"LLM_LOCAL_RETRIES" env-default:"1"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"3"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"LLM_BREAKER_RESET" env-default:"30s"`

	Dialect     string  `yaml:"dialect" env:"LLM_DIALECT" env-default:"PostgreSQL"`
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
}

// LocalLLMConfig points at an OpenAI-compatible server such as Ollama or vLLM.
type LocalLLMConfig struct {
	Endpoint string `yaml:"endpoint" env:"LOCAL_LLM_ENDPOINT" env-default:"http://localhost:11434/v1"`
	Model    string `yaml:"model" env:"LOCAL_LLM_MODEL" env-default:""`
	Thinking bool   `yaml:"thinking" env:"LOCAL_LLM_THINKING" env-default:"false"`
	APIKey   string `yaml:"-" env:"LOCAL_LLM_API_KEY"` // Secret - not in YAML
}

// RemoteLLMConfig configures the Anthropic backend.
type RemoteLLMConfig struct {
	Model   string `yaml:"model" env:"REMOTE_LLM_MODEL" env-default:"claude-sonnet-4-20250514"`
	BaseURL string `yaml:"base_url" env:"REMOTE_LLM_BASE_URL" env-default:""`
	APIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// PipelineConfig tunes request handling.
type PipelineConfig struct {
	IntentThreshold      float64 `yaml:"intent_threshold" env:"PIPELINE_INTENT_THRESHOLD" env-default:"0.45"`
	ContextK             int     `yaml:"context_k" env:"PIPELINE_CONTEXT_K" env-default:"3"`
	MaxPromptTables      int     `yaml:"max_prompt_tables" env:"PIPELINE_MAX_PROMPT_TABLES" env-default:"6"`
	EscalateOnComplexity bool    `yaml:"escalate_on_complexity" env:"PIPELINE_ESCALATE_ON_COMPLEXITY" env-default:"true"`
	BatchConcurrency     int     `yaml:"batch_concurrency" env:"PIPELINE_BATCH_CONCURRENCY" env-default:"8"`
	// ConfidenceFormula is an expression over intent, retrieval and repaired.
	// Empty uses the built-in weighting.
	ConfidenceFormula string `yaml:"confidence_formula" env:"PIPELINE_CONFIDENCE_FORMULA" env-default:""`
}

// RedisConfig enables the Redis event stream. An empty Host disables it.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Stream   string `yaml:"stream" env:"REDIS_STREAM" env-default:"datagenie:events"`
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Load reads configuration from path with environment variable overrides.
// An empty path reads DefaultPath and falls back to environment variables
// alone when that file does not exist. Secrets (ANTHROPIC_API_KEY,
// LOCAL_LLM_API_KEY, PGPASSWORD, REDIS_PASSWORD) must come from environment
// variables (yaml:"-" fields).
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if _, statErr := os.Stat(path); statErr != nil && !explicit && errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case "file":
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the file source")
		}
	case "postgres", "sqlserver":
		if c.Catalog.Database.Host == "" || c.Catalog.Database.Database == "" {
			return fmt.Errorf("catalog.database host and database are required for the %s source", c.Catalog.Source)
		}
	default:
		return fmt.Errorf("unknown catalog source %q (must be file, postgres or sqlserver)", c.Catalog.Source)
	}

	switch c.Embedding.Provider {
	case "hash":
		if c.Embedding.Dims <= 0 {
			return fmt.Errorf("embedding.dims must be positive")
		}
	case "openai":
	default:
		return fmt.Errorf("unknown embedding provider %q (must be hash or openai)", c.Embedding.Provider)
	}

	if c.LLM.LocalTimeout <= 0 || c.LLM.RemoteTimeout <= 0 {
		return fmt.Errorf("llm timeouts must be positive")
	}
	if c.LLM.LocalTimeout >= c.LLM.RemoteTimeout {
		return fmt.Errorf("llm.local_timeout (%s) must be shorter than llm.remote_timeout (%s)",
			c.LLM.LocalTimeout, c.LLM.RemoteTimeout)
	}
	if c.LLM.LocalRetries < 0 {
		return fmt.Errorf("llm.local_retries must not be negative")
	}

	if c.Pipeline.IntentThreshold <= 0 || c.Pipeline.IntentThreshold >= 1 {
		return fmt.Errorf("pipeline.intent_threshold must be between 0 and 1, got %v", c.Pipeline.IntentThreshold)
	}
	if c.Pipeline.ContextK < 0 {
		return fmt.Errorf("pipeline.context_k must not be negative")
	}
	if c.Pipeline.ConfidenceFormula != "" {
		env := map[string]any{"intent": 0.0, "retrieval": 0.0, "repaired": false}
		if _, err := expr.Compile(c.Pipeline.ConfidenceFormula, expr.Env(env), expr.AsFloat64()); err != nil {
			return fmt.Errorf("pipeline.confidence_formula: %w", err)
		}
	}
	return nil
}

// SourceConfig returns the config map passed to the catalog source factory.
func (c *CatalogConfig) SourceConfig() map[string]any {
	if c.Source == "file" {
		return map[string]any{
			"path":       c.Path,
			"infer_tags": c.InferTags,
		}
	}

	m := map[string]any{
		"host":     c.Database.Host,
		"user":     c.Database.User,
		"password": c.Database.Password,
		"database": c.Database.Database,
	}
	if c.Database.Port > 0 {
		m["port"] = c.Database.Port
	}
	switch c.Source {
	case "postgres":
		m["ssl_mode"] = c.Database.SSLMode
		if len(c.Schemas) > 0 {
			m["schemas"] = c.Schemas
		}
	case "sqlserver":
		m["encrypt"] = c.Database.SSLMode != "disable"
		m["trust_server_certificate"] = c.Database.SSLMode == "disable"
	}
	return m
}

// Backends returns the settings for llm.NewBackends.
func (c *LLMConfig) Backends() llm.BackendsConfig {
	return llm.BackendsConfig{
		Local: llm.OpenAIConfig{
			Name:     "local",
			Endpoint: ResolveEndpoint(c.Local.Endpoint),
			Model:    c.Local.Model,
			APIKey:   c.Local.APIKey,
			Thinking: c.Local.Thinking,
		},
		Remote: llm.AnthropicConfig{
			Name:    "remote",
			APIKey:  c.Remote.APIKey,
			Model:   c.Remote.Model,
			BaseURL: c.Remote.BaseURL,
		},
	}
}

// Router returns the router deadlines and breaker settings.
func (c *LLMConfig) Router() llm.RouterConfig {
	cfg := llm.DefaultRouterConfig()
	cfg.LocalTimeout = c.LocalTimeout
	cfg.RemoteTimeout = c.RemoteTimeout
	cfg.LocalRetries = c.LocalRetries
	if c.BreakerThreshold > 0 {
		cfg.Breaker.Threshold = c.BreakerThreshold
	}
	if c.BreakerReset > 0 {
		cfg.Breaker.ResetAfter = c.BreakerReset
	}
	return cfg
}
