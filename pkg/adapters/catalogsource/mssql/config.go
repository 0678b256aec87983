package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/config"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" (Username, Password) or "service_principal"
	// (TenantID, ClientID, ClientSecret through Entra ID).
	AuthMethod string

	Username     string
	Password     string
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

const (
	authSQL              = "sql"
	authServicePrincipal = "service_principal"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from the catalog source settings. Without an
// explicit auth_method, a client_id selects service principal auth and a
// user name selects SQL auth.
func FromMap(config map[string]any) (*Config, error) {
	settings := catalogsource.Settings(config)
	cfg := &Config{
		Port:                   settings.Int("port", DefaultPort()),
		Encrypt:                settings.Bool("encrypt", true),
		TrustServerCertificate: settings.Bool("trust_server_certificate", false),
		ConnectionTimeout:      settings.Int("connection_timeout", DefaultConnectionTimeout()),
	}

	var err error
	if cfg.Host, err = settings.Require("host"); err != nil {
		return nil, err
	}
	if cfg.Database, err = settings.Require("database"); err != nil {
		return nil, err
	}

	username, hasUser := settings.String("username")
	if !hasUser {
		username, hasUser = settings.String("user")
	}
	_, hasClientID := config["client_id"].(string)

	cfg.AuthMethod, _ = settings.String("auth_method")
	switch {
	case cfg.AuthMethod != "":
	case hasClientID:
		cfg.AuthMethod = authServicePrincipal
	case hasUser:
		cfg.AuthMethod = authSQL
	default:
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case authSQL:
		cfg.Username = username
		cfg.Password, _ = settings.String("password")
	case authServicePrincipal:
		cfg.TenantID, _ = settings.String("tenant_id")
		cfg.ClientID, _ = settings.String("client_id")
		cfg.ClientSecret, _ = settings.String("client_secret")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be %s or %s)", cfg.AuthMethod, authSQL, authServicePrincipal)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case authSQL:
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case authServicePrincipal:
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}

	return nil
}

// driverAndDSN returns the database/sql driver name and connection string.
// Service principals authenticate through the azuresql driver.
func (c *Config) driverAndDSN() (string, string) {
	query := url.Values{}
	query.Add("database", c.Database)

	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	if c.AuthMethod == authServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID)
		query.Add("password", c.ClientSecret)
		query.Add("tenant id", c.TenantID)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", config.ResolveHost(c.Host), c.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.Username),
		url.QueryEscape(c.Password),
		config.ResolveHost(c.Host),
		c.Port,
		query.Encode(),
	)
}
