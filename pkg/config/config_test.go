package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp switches to a fresh temp directory for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	writeConfig(t, dir, `
env: "test"
catalog:
  source: postgres
  database:
    host: "db.example.com"
    user: "analyst"
    database: "warehouse"
llm:
  local:
    model: "qwen2.5-coder"
  local_timeout: 5s
  remote_timeout: 20s
`)

	os.Unsetenv("PGHOST")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LLM_LOCAL_TIMEOUT", "2s")
	t.Setenv("PGPASSWORD", "s3cret")

	cfg, err := Load("", "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.LLM.LocalTimeout != 2*time.Second {
		t.Errorf("expected LocalTimeout=2s (from env), got %s", cfg.LLM.LocalTimeout)
	}
	if cfg.LLM.RemoteTimeout != 20*time.Second {
		t.Errorf("expected RemoteTimeout=20s (from yaml), got %s", cfg.LLM.RemoteTimeout)
	}
	if cfg.Catalog.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Catalog.Database.Host)
	}
	if cfg.Catalog.Database.Password != "s3cret" {
		t.Errorf("expected Database.Password from PGPASSWORD, got %q", cfg.Catalog.Database.Password)
	}
	if cfg.LLM.Local.Model != "qwen2.5-coder" {
		t.Errorf("expected Local.Model=qwen2.5-coder, got %s", cfg.LLM.Local.Model)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("", "dev")
	if err != nil {
		t.Fatalf("Load() without config file failed: %v", err)
	}

	if cfg.Catalog.Source != "file" {
		t.Errorf("expected default catalog source file, got %s", cfg.Catalog.Source)
	}
	if cfg.Pipeline.IntentThreshold != 0.45 {
		t.Errorf("expected IntentThreshold=0.45, got %v", cfg.Pipeline.IntentThreshold)
	}
	if cfg.Pipeline.ContextK != 3 {
		t.Errorf("expected ContextK=3, got %d", cfg.Pipeline.ContextK)
	}
	if !cfg.Pipeline.EscalateOnComplexity {
		t.Error("expected EscalateOnComplexity to default to true")
	}
	if cfg.LLM.LocalTimeout != 8*time.Second || cfg.LLM.RemoteTimeout != 30*time.Second {
		t.Errorf("unexpected default timeouts %s/%s", cfg.LLM.LocalTimeout, cfg.LLM.RemoteTimeout)
	}
	if cfg.Redis.Enabled() {
		t.Error("expected Redis to be disabled by default")
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dims != 256 {
		t.Errorf("unexpected embedding defaults %s/%d", cfg.Embedding.Provider, cfg.Embedding.Dims)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load("does-not-exist.yaml", "dev")
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "does-not-exist.yaml") {
		t.Errorf("expected error to name the file, got: %v", err)
	}
}

func TestLoad_SecretsIgnoredInYAML(t *testing.T) {
	dir := chdirTemp(t)
	path := writeConfig(t, dir, `
llm:
  remote:
    model: "claude-sonnet-4-20250514"
    api_key: "from-yaml"
redis:
  host: "localhost"
  password: "from-yaml"
`)
	os.Unsetenv("ANTHROPIC_API_KEY")
	os.Unsetenv("REDIS_PASSWORD")

	cfg, err := Load(path, "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.LLM.Remote.APIKey != "" {
		t.Errorf("expected API key to be ignored in YAML, got %q", cfg.LLM.Remote.APIKey)
	}
	if cfg.Redis.Password != "" {
		t.Errorf("expected Redis password to be ignored in YAML, got %q", cfg.Redis.Password)
	}
	if !cfg.Redis.Enabled() {
		t.Error("expected Redis to be enabled when host is set")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load("", "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"local not shorter than remote", func(c *Config) {
			c.LLM.LocalTimeout = 30 * time.Second
		}, "must be shorter"},
		{"zero timeout", func(c *Config) {
			c.LLM.RemoteTimeout = 0
		}, "must be positive"},
		{"threshold out of range", func(c *Config) {
			c.Pipeline.IntentThreshold = 1.5
		}, "intent_threshold"},
		{"negative k", func(c *Config) {
			c.Pipeline.ContextK = -1
		}, "context_k"},
		{"unknown source", func(c *Config) {
			c.Catalog.Source = "mongodb"
		}, "unknown catalog source"},
		{"postgres without host", func(c *Config) {
			c.Catalog.Source = "postgres"
			c.Catalog.Database.Host = ""
		}, "host and database are required"},
		{"unknown embedder", func(c *Config) {
			c.Embedding.Provider = "word2vec"
		}, "unknown embedding provider"},
		{"bad formula", func(c *Config) {
			c.Pipeline.ConfidenceFormula = "intent +"
		}, "confidence_formula"},
		{"formula with unknown variable", func(c *Config) {
			c.Pipeline.ConfidenceFormula = "latency * 2"
		}, "confidence_formula"},
		{"valid formula", func(c *Config) {
			c.Pipeline.ConfidenceFormula = "0.7*intent + 0.3*retrieval"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCatalogConfig_SourceConfig(t *testing.T) {
	file := CatalogConfig{Source: "file", Path: "schema.yaml", InferTags: true}
	m := file.SourceConfig()
	if m["path"] != "schema.yaml" || m["infer_tags"] != true {
		t.Errorf("unexpected file source config: %v", m)
	}

	pg := CatalogConfig{
		Source:  "postgres",
		Schemas: []string{"public"},
		Database: DatabaseConfig{
			Host: "db", User: "u", Password: "p", Database: "d", SSLMode: "require",
		},
	}
	m = pg.SourceConfig()
	if _, ok := m["port"]; ok {
		t.Error("expected zero port to be omitted so the source default applies")
	}
	if m["ssl_mode"] != "require" || m["password"] != "p" {
		t.Errorf("unexpected postgres source config: %v", m)
	}
	if schemas, _ := m["schemas"].([]string); len(schemas) != 1 {
		t.Errorf("expected schemas to be passed through, got %v", m["schemas"])
	}

	mssql := CatalogConfig{Source: "sqlserver", Database: DatabaseConfig{Host: "db", Port: 1433, User: "sa", Database: "d", SSLMode: "disable"}}
	m = mssql.SourceConfig()
	if m["port"] != 1433 || m["encrypt"] != false || m["trust_server_certificate"] != true {
		t.Errorf("unexpected sqlserver source config: %v", m)
	}
}

func TestLLMConfig_Router(t *testing.T) {
	c := LLMConfig{
		LocalTimeout:     2 * time.Second,
		RemoteTimeout:    10 * time.Second,
		LocalRetries:     0,
		BreakerThreshold: 5,
		BreakerReset:     time.Minute,
	}
	r := c.Router()
	if r.LocalTimeout != 2*time.Second || r.RemoteTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %s/%s", r.LocalTimeout, r.RemoteTimeout)
	}
	if r.LocalRetries != 0 {
		t.Errorf("expected LocalRetries=0, got %d", r.LocalRetries)
	}
	if r.Breaker.Threshold != 5 || r.Breaker.ResetAfter != time.Minute {
		t.Errorf("unexpected breaker config %+v", r.Breaker)
	}

	b := c.Backends()
	if b.Local.Name != "local" || b.Remote.Name != "remote" {
		t.Errorf("unexpected backend names %q/%q", b.Local.Name, b.Remote.Name)
	}
}
