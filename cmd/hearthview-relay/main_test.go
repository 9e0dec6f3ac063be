package main

import (
	"os"
	"testing"
	"time"

	"github.com/hearthview/hearthview/internal/statestore"
)

func TestIntEnvParsesValue(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_INT", "42")
	if got := intEnv("HEARTHVIEW_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIntEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_INT_BAD", "not-a-number")
	if got := intEnv("HEARTHVIEW_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestDurationEnvParsesValue(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_DURATION", "150ms")
	if got := durationEnv("HEARTHVIEW_TEST_DURATION", time.Second); got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestDurationEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_DURATION_BAD", "soon")
	if got := durationEnv("HEARTHVIEW_TEST_DURATION_BAD", 2*time.Second); got != 2*time.Second {
		t.Fatalf("expected fallback 2s, got %s", got)
	}
}

func TestStorageProfileDefaults(t *testing.T) {
	cases := []struct {
		name    string
		profile string
		dsn     string
		want    string
		wantErr bool
	}{
		{"custom", "custom", "", "", false},
		{"unset", "", "", "", false},
		{"memory", "memory", "", "memory://", false},
		{"production with dsn", "production", "postgres://u@h/db", "postgres://u@h/db", false},
		{"production missing dsn", "production", "", "", true},
		{"unsupported", "sqlite", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HEARTHVIEW_BACKEND_PROFILE", tc.profile)
			t.Setenv("HEARTHVIEW_PRODUCTION_DSN", tc.dsn)
			_ = os.Unsetenv("HEARTHVIEW_POSTGRES_DSN")
			got, err := storageProfileDefaultsFromEnv()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for profile %q", tc.profile)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStorageProfileDurableLocalUsesDataDir(t *testing.T) {
	t.Setenv("HEARTHVIEW_BACKEND_PROFILE", "durable-local")
	t.Setenv("HEARTHVIEW_DATA_DIR", "/var/lib/hearthview")
	got, err := storageProfileDefaultsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "file:///var/lib/hearthview/config.json" {
		t.Fatalf("unexpected DSN %q", got)
	}
}

func TestBuildStateBackendPrecedence(t *testing.T) {
	t.Setenv("HEARTHVIEW_BACKEND_PROFILE", "durable-local")
	t.Setenv("HEARTHVIEW_STATE_DSN", "memory://")
	t.Setenv("HEARTHVIEW_STATE_FILE", "ignored.json")
	backend, err := buildStateBackendFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*statestore.MemoryBackend); !ok {
		t.Fatalf("explicit DSN should win over profile, got %T", backend)
	}
}
