package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.LockTimeout != 2*time.Second {
		t.Fatalf("expected 2s lock timeout, got %s", cfg.LockTimeout)
	}
	if cfg.NotifyMaxAttempts != 3 {
		t.Fatalf("expected 3 notify attempts, got %d", cfg.NotifyMaxAttempts)
	}
	if cfg.DispatchHandlerTimeout != 30*time.Second {
		t.Fatalf("expected 30s handler timeout, got %s", cfg.DispatchHandlerTimeout)
	}
	if len(cfg.NotifyChannels) != 2 || cfg.NotifyChannels[0] != "live" {
		t.Fatalf("unexpected default channels %v", cfg.NotifyChannels)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AUTHZ_STORE_ADMINS", "store-1=a1|a2;store-2=a3")
	t.Setenv("NOTIFY_BASE_DELAY", "50ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.StoreDriver)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected two brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.StoreAdmins["store-1"] != "a1|a2" || cfg.StoreAdmins["store-2"] != "a3" {
		t.Fatalf("unexpected admins %v", cfg.StoreAdmins)
	}
	if cfg.NotifyBaseDelay != 50*time.Millisecond {
		t.Fatalf("expected 50ms base delay, got %s", cfg.NotifyBaseDelay)
	}
}

func TestLoadError(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
