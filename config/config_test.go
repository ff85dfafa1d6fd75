package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rare/core"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Minute, cfg.Vault.GrantTTL)
	assert.Equal(t, 1000, cfg.Cognitive.DecisionHistoryLimit)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: json
kernel:
  analysis_interval: 30s
store:
  driver: sqlite
  path: /tmp/rare.db
model:
  provider: openai
  name: gpt-4o-mini
vault:
  grant_ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Kernel.AnalysisInterval)
	assert.Equal(t, time.Minute, cfg.Kernel.AmbientInterval, "unset keys keep defaults")
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, 10*time.Minute, cfg.Vault.GrantTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "model:\n  provider: openai\n")
	t.Setenv("RARE_MODEL_PROVIDER", "anthropic")
	t.Setenv("RARE_VAULT_GRANT_TTL", "45m")
	t.Setenv("RARE_COGNITIVE_DEFAULT_APP_STATE", "background")
	t.Setenv("RARE_METRICS_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, 45*time.Minute, cfg.Vault.GrantTTL)
	assert.Equal(t, core.AppBackground, cfg.Cognitive.DefaultAppState)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "log: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "store:\n  driver: postgres\nmodel:\n  provider: llama\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "model.provider")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative interval", func(c *Config) { c.Kernel.AmbientInterval = -time.Second }, "kernel"},
		{"zero history", func(c *Config) { c.Cognitive.DecisionHistoryLimit = 0 }, "decision_history_limit"},
		{"bad app state", func(c *Config) { c.Cognitive.DefaultAppState = "minimized" }, "default_app_state"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.Path = "" }, "store.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
