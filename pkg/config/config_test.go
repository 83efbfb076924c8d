package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 16, cfg.PipelineMaxConcurrency)
}

func TestLoad_MissingPasswordIsAnError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MissingAnthropicKeyIsAnError(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate_RejectsMinConnsAboveMaxConns(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("DB_MIN_CONNS", "50")
	t.Setenv("DB_MAX_CONNS", "10")

	_, err := Load()
	require.Error(t, err)
}
