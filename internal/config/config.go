// Package config loads the process-wide settings: warehouse and provider
// credentials, sampling parameters, the confirmation policy and the audit sink.
// Values are resolved once at startup as defaults, then an optional YAML file,
// then the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/takashabe/bigquery-mcp/internal/errs"
)

const (
	ConfirmationToken    = "token"
	ConfirmationAdvisory = "advisory"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Warehouse    WarehouseConfig    `yaml:"warehouse"`
	Generation   GenerationConfig   `yaml:"generation"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Audit        AuditConfig        `yaml:"audit"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
}

type WarehouseConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
	// CredentialsBase64 is a base64-encoded service account key.
	CredentialsBase64 string  `yaml:"credentials_base64"`
	PricePerTiB       float64 `yaml:"price_per_tib"`
	UseStorageAPI     bool    `yaml:"use_storage_api"`

	// Credentials is the decoded key, filled by Validate.
	Credentials []byte `yaml:"-"`
}

type GenerationConfig struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Temperature     float32       `yaml:"temperature"`
	TopK            float32       `yaml:"top_k"`
	TopP            float32       `yaml:"top_p"`
	MaxOutputTokens int32         `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ConfirmationConfig struct {
	Mode   string        `yaml:"mode"`
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogName string `yaml:"log_name"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "bigquery-mcp",
			Version:   "0.1.0",
			Transport: "stdio",
			HTTPAddr:  ":8080",
		},
		Warehouse: WarehouseConfig{
			PricePerTiB: 6.25,
		},
		Generation: GenerationConfig{
			Model:           "gemini-2.5-flash",
			Temperature:     0.1,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 4096,
			Timeout:         30 * time.Second,
		},
		Confirmation: ConfirmationConfig{
			Mode: ConfirmationToken,
			TTL:  15 * time.Minute,
		},
		Audit: AuditConfig{
			LogName: "bigquery-mcp-audit",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("GCP_BQ_BASE64_KEY", &c.Warehouse.CredentialsBase64)
	str("BIGQUERY_PROJECT_ID", &c.Warehouse.ProjectID)
	str("BIGQUERY_LOCATION", &c.Warehouse.Location)
	str("GOOGLE_AI_KEY", &c.Generation.APIKey)
	str("GEMINI_MODEL", &c.Generation.Model)
	str("CONFIRMATION_MODE", &c.Confirmation.Mode)
	str("CONFIRMATION_SECRET", &c.Confirmation.Secret)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("BIGQUERY_PRICE_PER_TIB"); ok && v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.Wrap(errs.Configuration, "BIGQUERY_PRICE_PER_TIB must be a number", err)
		}
		c.Warehouse.PricePerTiB = price
	}
	if v, ok := lookup("AUDIT_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.Configuration, "AUDIT_ENABLED must be a boolean", err)
		}
		c.Audit.Enabled = enabled
	}
	return nil
}

// Validate checks that everything a tool call needs is present. The project
// ID falls back to the service account key's project_id.
func (c *Config) Validate() error {
	if c.Warehouse.CredentialsBase64 == "" {
		return errs.New(errs.Configuration, "GCP_BQ_BASE64_KEY environment variable is not set")
	}
	key, err := DecodeServiceAccountKey(c.Warehouse.CredentialsBase64)
	if err != nil {
		return err
	}
	c.Warehouse.Credentials = key.JSON
	if c.Warehouse.ProjectID == "" {
		c.Warehouse.ProjectID = key.ProjectID
	}
	if c.Warehouse.ProjectID == "" {
		return errs.New(errs.Configuration, "project ID is not set and the service account key has no project_id")
	}

	if c.Generation.APIKey == "" {
		return errs.New(errs.Configuration, "GOOGLE_AI_KEY environment variable is not set")
	}
	if c.Generation.Timeout <= 0 {
		return errs.New(errs.Configuration, "generation timeout must be positive")
	}

	if c.Warehouse.PricePerTiB < 0 {
		return errs.New(errs.Configuration, "price per TiB must not be negative")
	}

	c.Confirmation.Mode = strings.ToLower(c.Confirmation.Mode)
	switch c.Confirmation.Mode {
	case ConfirmationToken, ConfirmationAdvisory:
	default:
		return errs.Newf(errs.Configuration, "unknown confirmation mode %q: expected %q or %q",
			c.Confirmation.Mode, ConfirmationToken, ConfirmationAdvisory)
	}
	if c.Confirmation.TTL <= 0 {
		return errs.New(errs.Configuration, "confirmation TTL must be positive")
	}

	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return errs.Newf(errs.Configuration, "unknown transport %q: expected stdio or http", c.Server.Transport)
	}
	return nil
}
