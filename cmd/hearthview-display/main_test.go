package main

import (
	"os"
	"testing"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_STR", "  value  ")
	if got := envOrDefault("HEARTHVIEW_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	_ = os.Unsetenv("HEARTHVIEW_TEST_STR_UNSET")
	if got := envOrDefault("HEARTHVIEW_TEST_STR_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestBoolEnv(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"false", false},
		{"maybe", false},
	}
	for _, tc := range cases {
		t.Setenv("HEARTHVIEW_TEST_BOOL", tc.raw)
		if got := boolEnv("HEARTHVIEW_TEST_BOOL", false); got != tc.want {
			t.Fatalf("boolEnv(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	_ = os.Unsetenv("HEARTHVIEW_TEST_BOOL_UNSET")
	if !boolEnv("HEARTHVIEW_TEST_BOOL_UNSET", true) {
		t.Fatalf("unset variable should use the fallback")
	}
}

func TestIntEnv(t *testing.T) {
	t.Setenv("HEARTHVIEW_TEST_SCREEN", "2")
	if got := intEnv("HEARTHVIEW_TEST_SCREEN", -1); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	t.Setenv("HEARTHVIEW_TEST_SCREEN", "second")
	if got := intEnv("HEARTHVIEW_TEST_SCREEN", -1); got != -1 {
		t.Fatalf("expected fallback -1, got %d", got)
	}
}

func TestLiveState(t *testing.T) {
	if liveState(true) != "on" || liveState(false) != "off" {
		t.Fatalf("unexpected live state strings")
	}
}
