package configsync

import (
	"path/filepath"
	"testing"
)

func TestBackendDeviceStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewDeviceStoreFromDSN(path)
	if err != nil {
		t.Fatalf("NewDeviceStoreFromDSN failed: %v", err)
	}
	defer CloseDeviceStore(store)

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("missing state should load as nil, got %+v", loaded)
	}

	cfg := DefaultConfig()
	cfg.Screens[0].Name = "Living Room"
	if err := store.Save(&DeviceSnapshot{Config: cfg, EditMode: true}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err = store.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded == nil {
		t.Fatalf("saved state should load")
	}
	if loaded.Config.Screens[0].Name != "Living Room" {
		t.Fatalf("config did not round trip: %+v", loaded.Config.Screens)
	}
	if !loaded.EditMode {
		t.Fatalf("edit flag did not round trip")
	}
}

func TestNewDeviceStoreFromDSNMemory(t *testing.T) {
	store, err := NewDeviceStoreFromDSN("memory://")
	if err != nil {
		t.Fatalf("memory DSN failed: %v", err)
	}
	if store == nil {
		t.Fatalf("memory DSN should yield a store")
	}
	if err := store.Save(&DeviceSnapshot{Config: DefaultConfig()}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := store.Load()
	if err != nil || loaded == nil {
		t.Fatalf("load failed: %v, %v", loaded, err)
	}
}

func TestNewDeviceStoreFromDSNEmpty(t *testing.T) {
	store, err := NewDeviceStoreFromDSN("")
	if err != nil {
		t.Fatalf("empty DSN should not error: %v", err)
	}
	if store != nil {
		t.Fatalf("empty DSN should yield no store")
	}
}

func TestNewDeviceStoreFromDSNUnsupported(t *testing.T) {
	if _, err := NewDeviceStoreFromDSN("redis://localhost"); err == nil {
		t.Fatalf("unsupported scheme should error")
	}
}
