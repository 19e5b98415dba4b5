package config

// StoreConfig configures the hybrid memory store's persisted location and
// retrieval parameters (SPEC_FULL.md §6).
type StoreConfig struct {
	// BasePath is the store's file stem; "<BasePath>.db"/".faiss"/".faiss.lock"
	// are derived from it for the shared store.
	BasePath string `yaml:"base_path"`

	// Metric is "l2" or "cosine", fixed for the lifetime of a store.
	Metric string `yaml:"metric"`

	// DistanceThreshold is loaded from config and ACE_DISTANCE_THRESHOLD, but
	// memstore.Memory.Search does not read it: a search without an explicit
	// threshold uses DefaultThreshold (1.8 for l2, 0.7 for cosine).
	DistanceThreshold float64 `yaml:"distance_threshold"`

	// Language selects the oracle prompt locale ("en" or "ja").
	Language string `yaml:"language"`

	// Mode is "shared" (one store for all sessions) or "isolated" (one store per session id).
	Mode string `yaml:"mode"`
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BasePath:          "ace_memory",
		Metric:            "l2",
		DistanceThreshold: 1.8,
		Language:          "en",
		Mode:              "shared",
	}
}

// DefaultThreshold returns the metric-appropriate default distance threshold.
func (c StoreConfig) DefaultThreshold() float64 {
	if c.Metric == "cosine" {
		return 0.7
	}
	return 1.8
}
