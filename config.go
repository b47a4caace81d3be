package relay

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig is the client configuration read from RELAY_* environment
// variables.
type EnvConfig struct {
	APIURL    string        `envconfig:"API_URL"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"USER_AGENT"`
	Debug     bool          `envconfig:"DEBUG" default:"false"`
	Metrics   bool          `envconfig:"METRICS" default:"false"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	// RateLimitRPS zero disables rate limiting.
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"1"`
}

// LoadConfig loads configuration from the environment.
func LoadConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("relay", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadConfigOrDefault loads configuration or returns defaults on error.
func LoadConfigOrDefault() *EnvConfig {
	cfg, err := LoadConfig()
	if err != nil {
		return DefaultEnvConfig()
	}
	return cfg
}

// DefaultEnvConfig returns the configuration used when nothing is set.
func DefaultEnvConfig() *EnvConfig {
	return &EnvConfig{
		Timeout:        30 * time.Second,
		LogLevel:       "info",
		RateLimitBurst: 1,
	}
}

// ClientConfig returns the Config part.
func (e *EnvConfig) ClientConfig() Config {
	return Config{APIURL: e.APIURL}
}

// Options translates the environment settings into client options.
func (e *EnvConfig) Options() ([]Option, error) {
	logger, err := NewZapLogger(LogConfig{Level: e.LogLevel, Development: e.LogDevelopment})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	opts := []Option{
		WithTimeout(e.Timeout),
		WithZapLogger(logger),
	}
	if e.UserAgent != "" {
		opts = append(opts, WithUserAgent(e.UserAgent))
	}
	if e.Debug {
		opts = append(opts, WithDebug())
	}
	if e.Metrics {
		opts = append(opts, WithMetrics())
	}
	if e.RateLimitRPS > 0 {
		opts = append(opts, WithRateLimit(e.RateLimitRPS, e.RateLimitBurst))
	}
	return opts, nil
}
