// Package config defines the NoETL configuration schema and the helpers for
// loading it, following the layered approach of the retrieved service-layer
// pack's pkg/config: typed fields with `env:` tags decoded by envdecode,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ErrConfigNotFound mirrors the teacher's sentinel-error convention.
var ErrConfigNotFound = errors.New("noetl config not found")

// ServerConfig controls the HTTP API surface (§4.11, §6).
type ServerConfig struct {
	Host string `env:"NOETL_HOST,default=0.0.0.0"`
	Port int    `env:"NOETL_PORT,default=8082"`
	URL  string `env:"NOETL_SERVER_URL"`
}

// DatabaseConfig controls the Postgres-backed event log, catalog and
// credential stores (§4.2, §4.3, §4.4).
type DatabaseConfig struct {
	User            string `env:"POSTGRES_USER,default=noetl"`
	Password        string `env:"POSTGRES_PASSWORD"`
	Name            string `env:"POSTGRES_DB,default=noetl"`
	Host            string `env:"POSTGRES_HOST,default=localhost"`
	Port            int    `env:"POSTGRES_PORT,default=5432"`
	DSN             string `env:"NOETL_PGDB"`
	Schema          string `env:"NOETL_SCHEMA,default=public"`
	StartupTimeout  int    `env:"NOETL_DB_STARTUP_TIMEOUT,default=60"`
	RetryIntervalMS int    `env:"NOETL_DB_RETRY_INTERVAL,default=2000"`
}

// ConnString renders a libpq-style DSN, preferring an explicit DSN override.
func (d DatabaseConfig) ConnString() string {
	if strings.TrimSpace(d.DSN) != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RetryInterval returns RetryIntervalMS as a time.Duration.
func (d DatabaseConfig) RetryInterval() time.Duration {
	return time.Duration(d.RetryIntervalMS) * time.Millisecond
}

// StartupDeadline returns StartupTimeout as a time.Duration.
func (d DatabaseConfig) StartupDeadline() time.Duration {
	return time.Duration(d.StartupTimeout) * time.Second
}

// SecurityConfig controls credential payload encryption at rest.
type SecurityConfig struct {
	EncryptionKey string `env:"NOETL_ENCRYPTION_KEY"`
}

// HTTPPluginConfig controls the HTTP task plugin's deterministic mock mode.
type HTTPPluginConfig struct {
	MockLocal   bool `env:"NOETL_HTTP_MOCK_LOCAL,default=true"`
	MockOnError bool `env:"NOETL_HTTP_MOCK_ON_ERROR,default=false"`
}

// CloudCredentialConfig names the default cloud credentials the DuckDB
// plugin falls back to when a statement references an uncovered bucket
// scope (§4.5 DuckDB plugin).
type CloudCredentialConfig struct {
	GCSCredential string `env:"NOETL_GCS_CREDENTIAL"`
	S3Credential  string `env:"NOETL_S3_CREDENTIAL"`
}

// WorkerConfig identifies this process when running as a worker (§6).
type WorkerConfig struct {
	WorkerID  string `env:"WORKER_ID"`
	CatalogID string `env:"NOETL_CATALOG_ID"`
}

// Config is the top-level NoETL configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Security SecurityConfig
	HTTP     HTTPPluginConfig
	Cloud    CloudCredentialConfig
	Worker   WorkerConfig
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `env:"NOETL_LOG_LEVEL,default=info"`
	Format string `env:"NOETL_LOG_FORMAT,default=text"`
	Output string `env:"NOETL_LOG_OUTPUT,default=stdout"`
}

// Load reads a .env file (if present) and decodes process environment
// variables into a Config. envFile may be empty, in which case only
// already-exported environment variables are used.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("loading env file %q: %w", envFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat env file %q: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding environment: %w", err)
	}
	return &cfg, nil
}
