// Package config loads runtime settings from an optional YAML file overlaid by
// RARE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/rare/core"
	"github.com/hupe1980/rare/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RARE_"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Model providers.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Kernel    KernelConfig    `yaml:"kernel" envPrefix:"KERNEL_"`
	Cognitive CognitiveConfig `yaml:"cognitive" envPrefix:"COGNITIVE_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Model     ModelConfig     `yaml:"model" envPrefix:"MODEL_"`
	Vault     VaultConfig     `yaml:"vault" envPrefix:"VAULT_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

type LogConfig struct {
	Level     string `yaml:"level" env:"LEVEL"`
	Format    string `yaml:"format" env:"FORMAT"`
	AddSource bool   `yaml:"add_source" env:"ADD_SOURCE"`
}

type KernelConfig struct {
	// AnalysisInterval schedules pattern analysis. Zero disables it.
	AnalysisInterval time.Duration `yaml:"analysis_interval" env:"ANALYSIS_INTERVAL"`
	// AmbientInterval refreshes the ambient context. Zero disables it.
	AmbientInterval time.Duration `yaml:"ambient_interval" env:"AMBIENT_INTERVAL"`
	StopTimeout     time.Duration `yaml:"stop_timeout" env:"STOP_TIMEOUT"`
}

type CognitiveConfig struct {
	DecisionHistoryLimit int           `yaml:"decision_history_limit" env:"DECISION_HISTORY_LIMIT"`
	IntentCacheSize      int           `yaml:"intent_cache_size" env:"INTENT_CACHE_SIZE"`
	DefaultAppState      core.AppState `yaml:"default_app_state" env:"DEFAULT_APP_STATE"`
}

type StoreConfig struct {
	Driver         string        `yaml:"driver" env:"DRIVER"`
	Path           string        `yaml:"path" env:"PATH"`
	PersistTimeout time.Duration `yaml:"persist_timeout" env:"PERSIST_TIMEOUT"`
}

type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	Name        string  `yaml:"name" env:"NAME"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
	// APIKey is optional; the provider SDKs fall back to their own variables.
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

type VaultConfig struct {
	GrantTTL time.Duration `yaml:"grant_ttl" env:"GRANT_TTL"`
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Kernel: KernelConfig{
			AnalysisInterval: 5 * time.Minute,
			AmbientInterval:  time.Minute,
			StopTimeout:      10 * time.Second,
		},
		Cognitive: CognitiveConfig{
			DecisionHistoryLimit: 1000,
			IntentCacheSize:      512,
			DefaultAppState:      core.AppForeground,
		},
		Store: StoreConfig{
			Driver:         DriverMemory,
			Path:           "rare.db",
			PersistTimeout: 5 * time.Second,
		},
		Model: ModelConfig{
			Provider:    ProviderMock,
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Vault: VaultConfig{GrantTTL: 30 * time.Minute},
	}
}

// Load returns Default overlaid by the YAML file at path (skipped when path
// is empty) and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", c.Log.Format))
	}
	if c.Kernel.AnalysisInterval < 0 || c.Kernel.AmbientInterval < 0 {
		errs = append(errs, errors.New("kernel: intervals must not be negative"))
	}
	if c.Cognitive.DecisionHistoryLimit <= 0 {
		errs = append(errs, errors.New("cognitive.decision_history_limit: must be positive"))
	}
	if c.Cognitive.IntentCacheSize < 0 {
		errs = append(errs, errors.New("cognitive.intent_cache_size: must not be negative"))
	}
	switch c.Cognitive.DefaultAppState {
	case core.AppForeground, core.AppBackground:
	default:
		errs = append(errs, fmt.Errorf("cognitive.default_app_state: unsupported %q", c.Cognitive.DefaultAppState))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path: required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported %q", c.Store.Driver))
	}
	switch c.Model.Provider {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported %q", c.Model.Provider))
	}
	return errors.Join(errs...)
}
