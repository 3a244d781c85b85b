package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is unset. A missing file is not an error.
const DefaultConfigFile = "config/config.yaml"

// AppConfig is resolved in three layers: code defaults, the YAML file, then environment variables.
type AppConfig struct {
	AppName  string `yaml:"app_name" envconfig:"APP_NAME"`
	Port     string `yaml:"port" envconfig:"PORT"`
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// DatabaseURL selects the postgres store; empty keeps everything in memory.
	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`
	// RedisURL enables the live-weather cache and refresh events.
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`

	OpenMeteoBaseURL string        `yaml:"openmeteo_base_url" envconfig:"OPENMETEO_BASE_URL"`
	HTTPTimeout      time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`

	// RefreshInterval is measured from the end of one refresh cycle to the start of the next.
	RefreshInterval     time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
	RefreshMaxRetries   int           `yaml:"refresh_max_retries" envconfig:"REFRESH_MAX_RETRIES"`
	RefreshRetryInitial time.Duration `yaml:"refresh_retry_initial" envconfig:"REFRESH_RETRY_INITIAL"`
	RefreshRetryMax     time.Duration `yaml:"refresh_retry_max" envconfig:"REFRESH_RETRY_MAX"`

	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" envconfig:"HOUSEKEEPING_INTERVAL"`
	CurrentCacheTTL      time.Duration `yaml:"current_cache_ttl" envconfig:"CURRENT_CACHE_TTL"`
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		AppName:              "city-forecast",
		Port:                 "8080",
		LogLevel:             "info",
		HTTPTimeout:          10 * time.Second,
		RefreshInterval:      15 * time.Minute,
		RefreshMaxRetries:    2,
		RefreshRetryInitial:  500 * time.Millisecond,
		RefreshRetryMax:      5 * time.Second,
		HousekeepingInterval: time.Minute,
		CurrentCacheTTL:      5 * time.Minute,
	}
}

// Load reads .env, the YAML file named by CONFIG_FILE and the environment.
func Load() (*AppConfig, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path)
}

// LoadFile resolves the configuration using the given YAML path.
func LoadFile(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Fields have no envconfig defaults, so unset variables leave the layers above intact.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("environment variable parsing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *AppConfig) Validate() error {
	if c.AppName == "" {
		return errors.New("app_name is required")
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.RefreshMaxRetries < 0 {
		return errors.New("REFRESH_MAX_RETRIES must not be negative")
	}
	if c.RefreshRetryInitial < 0 || c.RefreshRetryMax < 0 {
		return errors.New("refresh retry intervals must not be negative")
	}
	if c.HousekeepingInterval <= 0 {
		return errors.New("HOUSEKEEPING_INTERVAL must be positive")
	}
	return nil
}
