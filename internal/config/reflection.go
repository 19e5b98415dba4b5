package config

import "encoding/json"

// ReflectionConfig configures the background reflection worker (component F).
type ReflectionConfig struct {
	// Enabled controls whether the reflection worker runs at all.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// PollInterval is how long the worker sleeps after finding no pending task.
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// LooseThreshold is the candidate window used by the locality probe
	// (memory.FindSimilar), looser than the default search threshold so
	// near-duplicate candidates reach the oracle for a merge decision.
	LooseThreshold float64 `yaml:"loose_threshold" json:"loose_threshold"`

	// RecoveryEnabled turns on the optional stale-processing-task sweep (§4.E).
	RecoveryEnabled bool `yaml:"recovery_enabled" json:"recovery_enabled"`

	// RecoveryMaxAge is how old a "processing" task must be before the sweep
	// resets it to "pending".
	RecoveryMaxAge string `yaml:"recovery_max_age" json:"recovery_max_age"`

	// RecoveryMaxRetries bounds how many times a task may be recovered before
	// the sweep instead marks it "failed".
	RecoveryMaxRetries int `yaml:"recovery_max_retries" json:"recovery_max_retries"`

	enabledSet bool
}

// UnmarshalJSON tracks whether "enabled" was explicitly set, so a config file
// that omits it does not silently disable the worker (mirrors the donor's
// ReflectionConfig trick for the same problem).
func (c *ReflectionConfig) UnmarshalJSON(data []byte) error {
	type alias ReflectionConfig
	aux := struct {
		Enabled *bool `json:"enabled"`
		*alias
	}{
		alias: (*alias)(c),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Enabled != nil {
		c.Enabled = *aux.Enabled
		c.enabledSet = true
	}
	return nil
}

// EnabledExplicitlySet reports whether a loaded config file set "enabled" itself.
func (c ReflectionConfig) EnabledExplicitlySet() bool {
	return c.enabledSet
}

// DefaultReflectionConfig returns sensible defaults.
func DefaultReflectionConfig() ReflectionConfig {
	return ReflectionConfig{
		Enabled:            true,
		PollInterval:       "1s",
		LooseThreshold:     0.4,
		RecoveryEnabled:    false,
		RecoveryMaxAge:     "10m",
		RecoveryMaxRetries: 3,
	}
}
