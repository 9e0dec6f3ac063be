// Package statestore persists a single JSON snapshot behind a small
// backend interface selected by DSN. The display agent keeps its
// device cache here and the relay keeps the authoritative document.
package statestore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrInvalidInput = errors.New("invalid input")

// Backend stores one opaque JSON snapshot. Load returns nil with no
// error when nothing has been saved yet.
type Backend interface {
	Load() ([]byte, error)
	Save(snapshot []byte) error
}

type backendCloser interface {
	Close() error
}

// Close releases backend resources when the backend holds any.
func Close(backend Backend) {
	if closer, ok := backend.(backendCloser); ok {
		_ = closer.Close()
	}
}

// JSONFileBackend keeps the snapshot in a single file, written
// atomically via rename.
type JSONFileBackend struct {
	path string
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{path: path}
}

func (b *JSONFileBackend) Path() string {
	return b.path
}

func (b *JSONFileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *JSONFileBackend) Save(snapshot []byte) error {
	if snapshot == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(b.path, snapshot, 0o644)
}

// MemoryBackend holds the snapshot in memory. Used by tests and the
// memory storage profile.
type MemoryBackend struct {
	mu       sync.Mutex
	snapshot []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load() ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return nil, nil
	}
	clone := make([]byte, len(b.snapshot))
	copy(clone, b.snapshot)
	return clone, nil
}

func (b *MemoryBackend) Save(snapshot []byte) error {
	if b == nil || snapshot == nil {
		return nil
	}
	clone := make([]byte, len(snapshot))
	copy(clone, snapshot)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = clone
	return nil
}

type Factory func(dsn string) (Backend, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: map[string]Factory{},
}

// RegisterFactory installs a factory for a DSN scheme, overriding the
// built-in handling for that scheme.
func RegisterFactory(scheme string, factory Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[scheme] = factory
}

func lookupFactory(scheme string) (Factory, bool) {
	scheme = normalizeScheme(scheme)
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	factory, ok := registry.factories[scheme]
	return factory, ok
}

// BuildFromDSN selects a backend by DSN scheme. A bare path or a
// file:// DSN selects the JSON file backend, memory:// the in-memory
// backend, postgres:// the Postgres backend.
func BuildFromDSN(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileBackend(path), nil
	case "memory", "mem", "inmem":
		return NewMemoryBackend(), nil
	case "postgres", "postgresql":
		return NewPostgresBackend(dsn)
	default:
		return nil, fmt.Errorf("unsupported state backend scheme: %s", scheme)
	}
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = filepath.Join(parsed.Host, path)
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("file dsn is missing a path: %s", raw)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
