package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetLoggingState(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	loggersMu.Lock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	configLoaded = false
	config = loggingConfig{}
	workspace = ""
	logsDir = ""

	return tempDir
}

func writeTestConfig(t *testing.T, workspaceDir string, content string) {
	t.Helper()
	configDir := filepath.Join(workspaceDir, ".acemem")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"store": true,
				"embedding": true,
				"queue": true,
				"reflection": true,
				"oracle": true,
				"cli": true
			}
		}
	}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	categories := []Category{
		CategoryBoot, CategoryStore, CategoryEmbedding,
		CategoryQueue, CategoryReflection, CategoryOracle, CategoryCLI,
	}
	for _, cat := range categories {
		l := Get(cat)
		l.Info("test message for %s", cat)
		if l.logger == nil {
			t.Errorf("expected logger for category %s to be active", cat)
		}
	}
}

func TestDebugModeDisabledNoLogFiles(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{"logging": {"debug_mode": false}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryStore)
	l.Info("should not be written anywhere")

	logsDirPath := filepath.Join(tempDir, ".acemem", "logs")
	if _, err := os.Stat(logsDirPath); !os.IsNotExist(err) {
		t.Errorf("expected no logs directory when debug_mode is false, got err=%v", err)
	}
}

func TestMissingConfigFileDefaultsToDisabled(t *testing.T) {
	tempDir := resetLoggingState(t)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Error("expected debug mode to default to false when config is missing")
	}
}

func TestIsCategoryEnabled_SelectiveCategories(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{
		"logging": {
			"debug_mode": true,
			"categories": {
				"store": true,
				"oracle": false
			}
		}
	}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if !IsCategoryEnabled(CategoryStore) {
		t.Error("expected store category to be enabled")
	}
	if IsCategoryEnabled(CategoryOracle) {
		t.Error("expected oracle category to be disabled")
	}
	// Categories absent from the map default to enabled.
	if !IsCategoryEnabled(CategoryQueue) {
		t.Error("expected queue category to default to enabled when unlisted")
	}
}

func TestLogFileContentsContainMessage(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{"logging": {"debug_mode": true, "level": "debug"}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryReflection)
	l.Info("reflection cycle processed task %d", 42)

	logsDirPath := filepath.Join(tempDir, ".acemem", "logs")
	entries, err := os.ReadDir(logsDirPath)
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}

	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "reflection") {
			data, err := os.ReadFile(filepath.Join(logsDirPath, e.Name()))
			if err != nil {
				t.Fatalf("reading log file: %v", err)
			}
			if strings.Contains(string(data), "reflection cycle processed task 42") {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected reflection log file to contain the logged message")
	}
}

func TestRequestLoggerIncludesRequestID(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{"logging": {"debug_mode": true, "level": "debug"}}`)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	rl := WithRequestID(CategoryOracle, "req-abc-123").WithField("model", "llama3.1")
	rl.Info("invoking oracle")

	logsDirPath := filepath.Join(tempDir, ".acemem", "logs")
	entries, err := os.ReadDir(logsDirPath)
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}

	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "oracle") {
			data, _ := os.ReadFile(filepath.Join(logsDirPath, e.Name()))
			if strings.Contains(string(data), "req-abc-123") && strings.Contains(string(data), "llama3.1") {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected oracle log to contain request id and field")
	}
}

func TestTimerStopReturnsElapsed(t *testing.T) {
	resetLoggingState(t)

	timer := StartTimer(CategoryQueue, "enqueue")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Errorf("expected non-negative elapsed duration, got %v", elapsed)
	}
}

func TestReloadConfigPicksUpChanges(t *testing.T) {
	tempDir := resetLoggingState(t)

	writeTestConfig(t, tempDir, `{"logging": {"debug_mode": false}}`)
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsDebugMode() {
		t.Fatal("expected debug mode disabled initially")
	}

	writeTestConfig(t, tempDir, `{"logging": {"debug_mode": true}}`)
	if err := ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if !IsDebugMode() {
		t.Error("expected debug mode enabled after reload")
	}
}
