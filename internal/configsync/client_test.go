package configsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeRelayURL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"192.168.1.50", "http://192.168.1.50"},
		{"192.168.1.50:8000", "http://192.168.1.50:8000"},
		{"http://relay.local/", "http://relay.local"},
		{"https://relay.local", "https://relay.local"},
		{"  relay.local  ", "http://relay.local"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeRelayURL(tc.raw); got != tc.want {
			t.Fatalf("NormalizeRelayURL(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestHealthUnreachable(t *testing.T) {
	client := NewHTTPRelayClient("http://127.0.0.1:1", HTTPRelayClientOptions{HealthTimeout: 200 * time.Millisecond})
	err := client.Health(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFetchConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"screens":[{"id":"a","name":"Remote","panels":[]}],"activeScreenIndex":0}`)
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	cfg, err := client.FetchConfig(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if cfg.Screens[0].Name != "Remote" {
		t.Fatalf("unexpected document: %+v", cfg.Screens)
	}
}

func TestFetchConfigErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"missing screens", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"activeScreenIndex":0}`)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>oops</html>`)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()
			client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
			_, err := client.FetchConfig(context.Background())
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestPushConfigInjectsSaveID(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/config" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	cfg := DefaultConfig()
	if err := client.PushConfig(context.Background(), cfg, "save-123"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if received["_saveId"] != "save-123" {
		t.Fatalf("_saveId not injected: %+v", received)
	}
	if _, ok := received["screens"]; !ok {
		t.Fatalf("document body missing screens: %+v", received)
	}
}

func TestPushConfigNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	err := client.PushConfig(context.Background(), DefaultConfig(), "save-1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected HTTPError 400, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("HTTPError should match ErrUnavailable")
	}
}

func TestSubscribeSSE(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing accept header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"type\":\"config-updated\",\"saveId\":\"abc\"}\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	stream, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer stream.Close()

	event, err := stream.Next()
	if err != nil {
		t.Fatalf("first event failed: %v", err)
	}
	if event.Type != "connected" {
		t.Fatalf("expected connected, got %+v", event)
	}

	// Keepalive comments and non-JSON payloads are skipped.
	event, err = stream.Next()
	if err != nil {
		t.Fatalf("second event failed: %v", err)
	}
	if event.Type != EventConfigUpdated || event.SaveID != "abc" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestSubscribeRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPRelayClient(server.URL, HTTPRelayClientOptions{})
	if _, err := client.Subscribe(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
