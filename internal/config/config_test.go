package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Store.BasePath != "ace_memory" {
		t.Errorf("expected BasePath=ace_memory, got %s", cfg.Store.BasePath)
	}
	if cfg.Store.Metric != "l2" {
		t.Errorf("expected Metric=l2, got %s", cfg.Store.Metric)
	}
	if cfg.Reflection.PollInterval != "1s" {
		t.Errorf("expected PollInterval=1s, got %s", cfg.Reflection.PollInterval)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ACE_DB_PATH", "")
	t.Setenv("ACE_METRIC", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Store.BasePath = "custom_memory"
	cfg.Store.Metric = "cosine"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Store.BasePath != "custom_memory" {
		t.Errorf("expected BasePath=custom_memory, got %s", loaded.Store.BasePath)
	}
	if loaded.Store.Metric != "cosine" {
		t.Errorf("expected Metric=cosine, got %s", loaded.Store.Metric)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("ACE_DB_PATH", "env_memory")
	defer os.Unsetenv("ACE_DB_PATH")
	os.Setenv("ACE_METRIC", "cosine")
	defer os.Unsetenv("ACE_METRIC")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.Store.BasePath != "env_memory" {
		t.Errorf("expected BasePath=env_memory, got %s", cfg.Store.BasePath)
	}
	if cfg.Store.Metric != "cosine" {
		t.Errorf("expected Metric=cosine, got %s", cfg.Store.Metric)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.BasePath != "ace_memory" {
		t.Errorf("expected default BasePath, got %s", cfg.Store.BasePath)
	}
}

func TestStoreConfig_DefaultThreshold(t *testing.T) {
	cfg := DefaultStoreConfig()
	if cfg.DefaultThreshold() != 1.8 {
		t.Errorf("expected l2 default threshold 1.8, got %v", cfg.DefaultThreshold())
	}
	cfg.Metric = "cosine"
	if cfg.DefaultThreshold() != 0.7 {
		t.Errorf("expected cosine default threshold 0.7, got %v", cfg.DefaultThreshold())
	}
}

func TestReflectionConfig_UnmarshalJSON_TracksExplicitEnabled(t *testing.T) {
	var cfg ReflectionConfig
	if err := cfg.UnmarshalJSON([]byte(`{"enabled": false}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Enabled {
		t.Error("expected Enabled=false")
	}
	if !cfg.EnabledExplicitlySet() {
		t.Error("expected enabledSet=true")
	}

	var cfg2 ReflectionConfig
	if err := cfg2.UnmarshalJSON([]byte(`{"top_k": 5}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg2.EnabledExplicitlySet() {
		t.Error("expected enabledSet=false when 'enabled' is absent")
	}
}
