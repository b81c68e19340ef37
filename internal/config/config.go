// Package config provides client configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/transport"
	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "PETSGO"

// Config holds petsgo client configuration.
type Config struct {
	BaseURL string        `envconfig:"BASE_URL" default:"https://api.ipod.vip:3303/facial"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"15s"`

	// Auth persistence: TokenStore is a JSON file; StoreDSN, when set, wins.
	TokenStore string `envconfig:"TOKEN_STORE"`
	StoreDSN   string `envconfig:"STORE_DSN"`

	// Response handling
	Envelope    string `envconfig:"ENVELOPE" default:"auto"`
	LenientJSON bool   `envconfig:"LENIENT_JSON" default:"false"`

	// Transport
	RateLimit  float64       `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst  int           `envconfig:"RATE_BURST" default:"1"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"0"`
	RetryWait  time.Duration `envconfig:"RETRY_WAIT" default:"500ms"`

	// Observability
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	SentryDSN string `envconfig:"SENTRY_DSN"`
}

// LoadConfig loads configuration from environment variables, after reading
// envFile (if it exists) into the environment.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if c.TokenStore == "" {
		c.TokenStore = DefaultTokenStore()
	}
	return &c, nil
}

// Validate checks the values a client cannot start without.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s_BASE_URL is required", envPrefix)
	}
	if _, err := transport.ParseEnvelopeMode(c.Envelope); err != nil {
		return fmt.Errorf("%s_ENVELOPE: %w", envPrefix, err)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s_RATE_LIMIT must not be negative", envPrefix)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%s_MAX_RETRIES must not be negative", envPrefix)
	}
	return nil
}

// EnvelopeMode returns the parsed envelope mode
func (c *Config) EnvelopeMode() transport.EnvelopeMode {
	mode, _ := transport.ParseEnvelopeMode(c.Envelope)
	return mode
}

// RetryConfig returns transport retry settings, or nil when retries are off
func (c *Config) RetryConfig() *types.RetryConfig {
	if c.MaxRetries <= 0 {
		return nil
	}
	return &types.RetryConfig{
		MaxRetries: c.MaxRetries,
		RetryWait:  c.RetryWait,
		MaxWait:    c.RetryWait * 8,
	}
}

// DefaultTokenStore returns ~/.petsgo/auth.json, or a relative path when the
// home directory is unknown.
func DefaultTokenStore() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".petsgo", "auth.json")
	}
	return filepath.Join(home, ".petsgo", "auth.json")
}
