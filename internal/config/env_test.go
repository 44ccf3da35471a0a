package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	// Test default value
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	// Test with set value
	os.Setenv("TEST_GET_ENV", "custom")
	defer os.Unsetenv("TEST_GET_ENV")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	os.Setenv("TEST_INT_ENV", "123")
	defer os.Unsetenv("TEST_INT_ENV")

	result = GetIntEnv("TEST_INT_ENV", 42)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	// Invalid int should return default
	os.Setenv("TEST_INVALID_INT", "not-a-number")
	defer os.Unsetenv("TEST_INVALID_INT")

	result = GetIntEnv("TEST_INVALID_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	os.Setenv("TEST_DURATION_ENV", "30s")
	defer os.Unsetenv("TEST_DURATION_ENV")

	result = GetDurationEnv("TEST_DURATION_ENV", defaultDuration)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}

	// Invalid duration should return default
	os.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	result = GetDurationEnv("TEST_INVALID_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v for invalid duration, got %v", defaultDuration, result)
	}
}

func TestGetSecretFile(t *testing.T) {
	if result := GetSecretFile(""); result != "" {
		t.Errorf("Expected empty string for empty path, got %q", result)
	}

	if result := GetSecretFile("/nonexistent/path/to/secret"); result != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", result)
	}

	tmpFile := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(tmpFile, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret file: %v", err)
	}

	if result := GetSecretFile(tmpFile); result != "my-secret-value" {
		t.Errorf("Expected trimmed secret, got %q", result)
	}
}

func TestLoadServiceConfig_Defaults(t *testing.T) {
	cfg := LoadServiceConfig()

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.QueueBackend != QueueMemory {
		t.Errorf("Expected default queue backend %q, got %q", QueueMemory, cfg.QueueBackend)
	}
	if cfg.JobTimeout != time.Hour {
		t.Errorf("Expected default job timeout 1h, got %v", cfg.JobTimeout)
	}
	if cfg.JobsDir != filepath.Join(cfg.DataDir, "jobs") {
		t.Errorf("Expected jobs dir under data dir, got %q", cfg.JobsDir)
	}
}

func TestLoadServiceConfig_DataDirOverride(t *testing.T) {
	os.Setenv("DATA_DIR", "/var/lib/grnd")
	defer os.Unsetenv("DATA_DIR")

	cfg := LoadServiceConfig()
	if cfg.ResultsDir != "/var/lib/grnd/results" {
		t.Errorf("Expected results dir to follow DATA_DIR, got %q", cfg.ResultsDir)
	}
}
