package utils

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("PORT", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend by default, got %q", cfg.StoreBackend)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected port 8080, got %s", cfg.ServerPort)
	}
	if cfg.Mongo.ConnectTimeout != 5*time.Second {
		t.Fatalf("expected mongo timeout 5s, got %s", cfg.Mongo.ConnectTimeout)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "etcd")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
}

func TestBuildDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "chat"}
	if got := cfg.BuildDSN(); got != "postgres://u:p@db:5432/chat" {
		t.Fatalf("unexpected dsn %s", got)
	}

	cfg.DSN = "postgres://override"
	if got := cfg.BuildDSN(); got != "postgres://override" {
		t.Fatalf("expected explicit dsn to win, got %s", got)
	}
}

func TestParseHelpersFallBack(t *testing.T) {
	if got := parseDuration("soon", time.Second); got != time.Second {
		t.Fatalf("expected fallback duration, got %s", got)
	}
	if got := parseBool("maybe", true); !got {
		t.Fatalf("expected fallback bool")
	}
	if got := parseInt32("x", 3); got != 3 {
		t.Fatalf("expected fallback int, got %d", got)
	}
}

func TestRequirePersistentStore(t *testing.T) {
	for _, backend := range []string{BackendMemory, ""} {
		cfg := &Config{StoreBackend: backend}
		if err := cfg.RequirePersistentStore(); !errors.Is(err, ErrEphemeralBackend) {
			t.Fatalf("backend %q: expected ErrEphemeralBackend, got %v", backend, err)
		}
	}

	for _, backend := range []string{BackendRedis, BackendMongo, BackendPostgres} {
		cfg := &Config{StoreBackend: backend}
		if err := cfg.RequirePersistentStore(); err != nil {
			t.Fatalf("backend %q: unexpected error %v", backend, err)
		}
	}
}
