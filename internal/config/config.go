package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"GPTAssistant/internal/reveal"
)

const (
	DefaultEndpoint       = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel          = "openai/gpt-3.5-turbo"
	DefaultReferer        = "http://localhost:5173"
	DefaultTitle          = "GPT Assistant"
	DefaultGreeting       = "Hi! Ask me anything..."
	DefaultLogDir         = "logs"
	DefaultAuditDB        = "gptassistant.db"

	EnvAPIKey   = "OPENROUTER_API_KEY"
	EnvModel    = "GPTASSISTANT_MODEL"
	EnvEndpoint = "GPTASSISTANT_ENDPOINT"
)

// Config holds application configuration
type Config struct {
	APIKey   string `yaml:"-"` // only ever read from the environment
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	Referer  string `yaml:"referer"`
	Title    string `yaml:"title"`
	Greeting string `yaml:"greeting"`

	RevealInterval    time.Duration `yaml:"reveal_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"` // 0 disables the client timeout
	RequestsPerMinute int           `yaml:"requests_per_minute"`

	LogDir  string `yaml:"log_dir"`
	AuditDB string `yaml:"audit_db"` // empty disables the audit store

	Plain bool `yaml:"plain"`
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		Model:          DefaultModel,
		Referer:        DefaultReferer,
		Title:          DefaultTitle,
		Greeting:       DefaultGreeting,
		RevealInterval: reveal.DefaultInterval,
		LogDir:         DefaultLogDir,
		AuditDB:        DefaultAuditDB,
	}
}

// Load builds a Config from the defaults, an optional YAML file and the
// environment. A .env file in the working directory is loaded first but never
// overrides variables already set in the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.APIKey = os.Getenv(EnvAPIKey)
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports the first setting that makes the client unusable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigurationError{Field: EnvAPIKey, Reason: "is not set"}
	}
	return c.validateSettings()
}

func (c Config) validateSettings() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &ConfigurationError{Field: "endpoint", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &ConfigurationError{Field: "model", Reason: "must not be empty"}
	}
	if c.RevealInterval <= 0 {
		return &ConfigurationError{Field: "reveal_interval", Reason: "must be positive"}
	}
	if c.RequestsPerMinute < 0 {
		return &ConfigurationError{Field: "requests_per_minute", Reason: "must not be negative"}
	}
	return nil
}

// ConfigurationError is returned before any network call when the
// configuration cannot produce a valid request.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}
