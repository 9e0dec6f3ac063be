package configsync

import (
	"encoding/json"
	"errors"

	"github.com/hearthview/hearthview/internal/statestore"
)

var ErrInvalidInput = errors.New("invalid input")

// DeviceSnapshot is the on-device persisted state: the document plus
// the edit flag, which is persisted locally but never mirrored to the
// relay.
type DeviceSnapshot struct {
	Config   DashboardConfig `json:"config"`
	EditMode bool            `json:"editMode"`
}

// DeviceStore mirrors the store's state to durable device storage.
// Load returns nil with no error when nothing has been saved yet.
type DeviceStore interface {
	Load() (*DeviceSnapshot, error)
	Save(snapshot *DeviceSnapshot) error
}

// BackendDeviceStore adapts a statestore backend (file, memory or
// postgres, selected by DSN) to the typed snapshot.
type BackendDeviceStore struct {
	backend statestore.Backend
}

func NewBackendDeviceStore(backend statestore.Backend) *BackendDeviceStore {
	return &BackendDeviceStore{backend: backend}
}

// NewDeviceStoreFromDSN builds a device store from a statestore DSN.
// An empty DSN yields a nil store (in-memory state only).
func NewDeviceStoreFromDSN(dsn string) (DeviceStore, error) {
	backend, err := statestore.BuildFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, nil
	}
	return NewBackendDeviceStore(backend), nil
}

func (b *BackendDeviceStore) Load() (*DeviceSnapshot, error) {
	if b == nil || b.backend == nil {
		return nil, nil
	}
	data, err := b.backend.Load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var snapshot DeviceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (b *BackendDeviceStore) Save(snapshot *DeviceSnapshot) error {
	if b == nil || b.backend == nil || snapshot == nil {
		return nil
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return b.backend.Save(data)
}

func (b *BackendDeviceStore) Close() error {
	if b == nil || b.backend == nil {
		return nil
	}
	statestore.Close(b.backend)
	return nil
}

// CloseDeviceStore closes the store if it holds external resources.
func CloseDeviceStore(store DeviceStore) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		_ = c.Close()
	}
}
