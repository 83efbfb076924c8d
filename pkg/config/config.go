// Package config loads process-level configuration from the environment,
// following the teacher's pkg/database.LoadConfigFromEnv convention:
// getEnvOrDefault helpers, validation after assembly, typed durations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/codeready-toolchain/discubot/pkg/database"
)

// Config is the full set of environment-derived settings cmd/discubot needs
// to wire the pipeline.
type Config struct {
	HTTPPort string

	Database database.Config

	AnthropicAPIKey string

	KBAPIBase     string
	DesignAPIBase string

	// PipelineMaxConcurrency bounds in-flight discussions (§5 expansion).
	// Zero or negative disables the bound.
	PipelineMaxConcurrency int
}

// Load reads Config from the environment, applying the same production
// defaults the database package uses for its own settings.
func Load() (Config, error) {
	dbPort, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxConns, err := strconv.Atoi(getEnvOrDefault("DB_MAX_CONNS", "25"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	minConns, err := strconv.Atoi(getEnvOrDefault("DB_MIN_CONNS", "2"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	connMaxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	connMaxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}
	maxConcurrency, err := strconv.Atoi(getEnvOrDefault("PIPELINE_MAX_CONCURRENCY", "16"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PIPELINE_MAX_CONCURRENCY: %w", err)
	}

	cfg := Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		Database: database.Config{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnvOrDefault("DB_USER", "discubot"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getEnvOrDefault("DB_NAME", "discubot"),
			SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxConns:        int32(maxConns),
			MinConns:        int32(minConns),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
		},
		AnthropicAPIKey:        os.Getenv("ANTHROPIC_API_KEY"),
		KBAPIBase:              os.Getenv("KB_API_BASE"),
		DesignAPIBase:          os.Getenv("DESIGN_API_BASE"),
		PipelineMaxConcurrency: maxConcurrency,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
