// Package config holds nested, YAML-tagged configuration for the memory
// substrate: store location/metric, embedding backend, oracle transport, and
// reflection worker tuning, with environment-variable overrides applied on
// top of file-or-default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"acemem/internal/embedding"
	"acemem/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all memory-substrate configuration.
type Config struct {
	Store      StoreConfig       `yaml:"store"`
	Embedding  embedding.Config  `yaml:"embedding"`
	Oracle     OracleConfig      `yaml:"oracle"`
	Reflection ReflectionConfig  `yaml:"reflection"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:      DefaultStoreConfig(),
		Embedding:  embedding.DefaultConfig(),
		Oracle:     DefaultOracleConfig(),
		Reflection: DefaultReflectionConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "acemem.log",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("Loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("Failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded: store=%s metric=%s embedding_provider=%s", cfg.Store.BasePath, cfg.Store.Metric, cfg.Embedding.Provider)

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides, per SPEC_FULL.md §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ACE_DB_PATH"); v != "" {
		c.Store.BasePath = v
	}
	if v := os.Getenv("ACE_METRIC"); v != "" {
		c.Store.Metric = v
	}
	if v := os.Getenv("ACE_DISTANCE_THRESHOLD"); v != "" {
		if f, err := parseFloat(v); err == nil {
			c.Store.DistanceThreshold = f
		}
	}
	if v := os.Getenv("ACE_LANG"); v != "" {
		c.Store.Language = v
	}
	if v := os.Getenv("ACE_MODE"); v != "" {
		c.Store.Mode = v
	}

	if v := os.Getenv("ACE_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("ACE_EMBEDDING_MODEL"); v != "" {
		switch c.Embedding.Provider {
		case "genai":
			c.Embedding.GenAIModel = v
		default:
			c.Embedding.OllamaModel = v
		}
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}

	if v := os.Getenv("ACE_ORACLE_ENDPOINT"); v != "" {
		c.Oracle.Endpoint = v
	}
	if v := os.Getenv("ACE_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}

	if v := os.Getenv("ACE_REFLECTION_INTERVAL"); v != "" {
		c.Reflection.PollInterval = v
	}
	if v := os.Getenv("ACE_REFLECTION_LOOSE_THRESHOLD"); v != "" {
		if f, err := parseFloat(v); err == nil {
			c.Reflection.LooseThreshold = f
		}
	}
	if v := os.Getenv("ACE_RECOVERY_MAX_AGE"); v != "" {
		c.Reflection.RecoveryMaxAge = v
		c.Reflection.RecoveryEnabled = true
	}
	if v := os.Getenv("ACE_RECOVERY_MAX_RETRIES"); v != "" {
		if n, err := parseInt(v); err == nil {
			c.Reflection.RecoveryMaxRetries = n
		}
	}
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// PollIntervalDuration returns the reflection poll interval as a duration.
func (c *ReflectionConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// RecoveryMaxAgeDuration returns the stale-task recovery age threshold.
func (c *ReflectionConfig) RecoveryMaxAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.RecoveryMaxAge)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}
