package configsync

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
		{0, time.Second},
		{-1, time.Second},
	}
	for _, tc := range cases {
		if got := BackoffDelay(tc.failures, base, max); got != tc.want {
			t.Fatalf("BackoffDelay(%d) = %s, want %s", tc.failures, got, tc.want)
		}
	}
}

func TestBackoffDelayDefaults(t *testing.T) {
	if got := BackoffDelay(1, 0, 0); got != time.Second {
		t.Fatalf("zero base should default to 1s, got %s", got)
	}
	if got := BackoffDelay(20, 0, 0); got != 30*time.Second {
		t.Fatalf("zero max should default to 30s, got %s", got)
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	store := newTestStore(t)
	client := &fakeRelayClient{fetched: DefaultConfig()}
	updater := NewLiveUpdater(store, client, LiveUpdaterOptions{})

	before := store.ExportConfig()
	updater.HandleEvent(context.Background(), Event{Type: "connected"})
	if string(store.ExportConfig()) != string(before) {
		t.Fatalf("non-update events must not touch the document")
	}
}

func TestHandleEventSuppressesOwnSave(t *testing.T) {
	store := newTestStore(t)
	remote := DefaultConfig()
	remote.Screens[0].Name = "Remote"
	client := &fakeRelayClient{fetched: remote}
	pending := NewPendingSaves(time.Minute)
	defer pending.Close()
	pending.Add("mine")
	updater := NewLiveUpdater(store, client, LiveUpdaterOptions{Pending: pending})

	updater.HandleEvent(context.Background(), Event{Type: EventConfigUpdated, SaveID: "mine"})
	if store.Config().Screens[0].Name == "Remote" {
		t.Fatalf("own save echo must not trigger a re-fetch")
	}
	if pending.Len() != 0 {
		t.Fatalf("suppressed save id should be consumed")
	}

	// The same id arriving again now counts as an external change.
	updater.HandleEvent(context.Background(), Event{Type: EventConfigUpdated, SaveID: "mine"})
	if store.Config().Screens[0].Name != "Remote" {
		t.Fatalf("external event should apply the remote document")
	}
}

func TestHandleEventAppliesExternalChange(t *testing.T) {
	store := newTestStore(t)
	remote := DefaultConfig()
	remote.Screens[0].Name = "Remote"
	remote.Screens[0].Panels = []PanelConfig{{ID: "p1", Widget: "news"}}
	client := &fakeRelayClient{fetched: remote}
	updater := NewLiveUpdater(store, client, LiveUpdaterOptions{})

	updater.HandleEvent(context.Background(), Event{Type: EventConfigUpdated, SaveID: "someone-else"})
	cfg := store.Config()
	if cfg.Screens[0].Name != "Remote" || len(cfg.Screens[0].Panels) != 1 {
		t.Fatalf("remote document not applied: %+v", cfg.Screens)
	}
}

func TestHandleEventKeepsLocalOnFetchFailure(t *testing.T) {
	store := newTestStore(t)
	store.AddScreen("Local")
	client := &fakeRelayClient{fetchErr: ErrUnavailable}
	updater := NewLiveUpdater(store, client, LiveUpdaterOptions{})

	before := store.ExportConfig()
	updater.HandleEvent(context.Background(), Event{Type: EventConfigUpdated})
	if string(store.ExportConfig()) != string(before) {
		t.Fatalf("failed re-fetch must leave the local document alone")
	}
}

func TestRunConsumesEventsAndReconnects(t *testing.T) {
	store := newTestStore(t)
	remote := DefaultConfig()
	remote.Screens[0].Name = "Remote"
	client := &fakeRelayClient{fetched: remote}
	updater := NewLiveUpdater(store, client, LiveUpdaterOptions{
		BackoffBase: 5 * time.Millisecond,
		BackoffMax:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		updater.Run(ctx)
		close(done)
	}()

	var first *fakeStream
	waitFor(t, time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		if len(client.streams) == 0 {
			return false
		}
		first = client.streams[0]
		return true
	})

	first.events <- Event{Type: EventConfigUpdated, SaveID: "other"}
	waitFor(t, time.Second, func() bool {
		return store.Config().Screens[0].Name == "Remote"
	})

	// Dropping the stream forces a reconnect.
	first.Close()
	waitFor(t, time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.streams) >= 2
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on context cancel")
	}
}
