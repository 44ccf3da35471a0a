package dispatcher

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_BUFFER_SIZE", "500")
	t.Setenv("WEBHOOK_WORKERS", "3")
	t.Setenv("WEBHOOK_HTTP_TIMEOUT", "2s")

	cfg := LoadConfigFromEnv()
	if cfg.BufferSize != 500 {
		t.Errorf("BufferSize = %d, want 500", cfg.BufferSize)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.HTTPTimeout != 2*time.Second {
		t.Errorf("HTTPTimeout = %v, want 2s", cfg.HTTPTimeout)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := MemoryConfig{}.withDefaults()
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
	if cfg.Workers != 10 {
		t.Errorf("Workers = %d, want 10", cfg.Workers)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.HTTPTimeout)
	}
}
