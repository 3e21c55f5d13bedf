package session

import (
	"testing"
	"time"
)

func TestNextBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     500 * time.Millisecond,
	}

	if got := NextBackoffDelay(cfg, 1, nil); got != cfg.InitialDelay {
		t.Fatalf("attempt 1: got %v want %v", got, cfg.InitialDelay)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := NextBackoffDelay(cfg, 10, nil); got != cfg.MaxDelay {
		t.Fatalf("attempt 10 should cap at %v, got %v", cfg.MaxDelay, got)
	}
}

func TestNextBackoffDelayJitterStaysBounded(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Second,
		Jitter:       true,
	}
	// nil rng applies the midpoint jitter factor deterministically.
	if got := NextBackoffDelay(cfg, 3, nil); got != 200*time.Millisecond {
		t.Fatalf("deterministic jitter midpoint: got %v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{ReadTimeout: time.Minute}.WithDefaults()
	if cfg.ReadTimeout != time.Minute {
		t.Fatalf("explicit value overwritten: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.Backoff.InitialDelay <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
