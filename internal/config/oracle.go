package config

import "time"

// OracleConfig configures the language-oracle transport client (internal/oracle).
// Grounded on the donor's LLMConfig, trimmed to the fields a single
// synchronous Invoke(prompt) client actually needs (SPEC_FULL.md §6).
type OracleConfig struct {
	Provider string `yaml:"provider"` // currently only "ollama" has a built-in client
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	Timeout  string `yaml:"timeout"`
	Timeouts OracleTimeouts `yaml:"timeouts"`
}

// OracleTimeouts centralizes oracle-call timeout/retry tuning. Trimmed from
// the donor's multi-tier LLMTimeouts down to the single tier this domain's
// one-method oracle client needs: a per-call deadline and a bounded backoff.
type OracleTimeouts struct {
	PerCallTimeout   time.Duration `yaml:"per_call_timeout"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	MaxRetries       int           `yaml:"max_retries"`
}

// DefaultOracleConfig returns sensible defaults for a local Ollama oracle.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		Provider: "ollama",
		Endpoint: "http://localhost:11434",
		Model:    "llama3.1",
		Timeout:  "60s",
		Timeouts: OracleTimeouts{
			PerCallTimeout:   60 * time.Second,
			RetryBackoffBase: 500 * time.Millisecond,
			RetryBackoffMax:  10 * time.Second,
			MaxRetries:       3,
		},
	}
}

// PerCallTimeoutDuration parses Timeout, falling back to the Timeouts tier default.
func (c OracleConfig) PerCallTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	if c.Timeouts.PerCallTimeout > 0 {
		return c.Timeouts.PerCallTimeout
	}
	return 60 * time.Second
}
