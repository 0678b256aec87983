package postgres

import (
	"fmt"
	"net/url"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/config"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string   // "disable", "require", "verify-ca", "verify-full"
	Schemas  []string // Restricts discovery; empty means every user schema
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from the catalog source settings.
func FromMap(config map[string]any) (*Config, error) {
	settings := catalogsource.Settings(config)
	cfg := &Config{
		Port:    settings.Int("port", DefaultPort()),
		SSLMode: DefaultSSLMode(),
	}

	var err error
	if cfg.Host, err = settings.Require("host"); err != nil {
		return nil, err
	}
	if cfg.User, err = settings.Require("user"); err != nil {
		return nil, err
	}
	if cfg.Database, err = settings.Require("database"); err != nil {
		return nil, err
	}
	cfg.Password, _ = settings.String("password")
	if mode, ok := settings.String("ssl_mode"); ok {
		cfg.SSLMode = mode
	}
	if cfg.Schemas, err = settings.Strings("schemas"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? survive. When running in Docker, localhost resolves to
// host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHost(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}
