package relayhub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hearthview/hearthview/internal/statestore"
)

// ErrInvalidDocument marks a config payload rejected by schema
// validation.
var ErrInvalidDocument = errors.New("invalid config document")

const defaultSuppressionWindow = 2 * time.Second

type ServiceOptions struct {
	Backend statestore.Backend
	Hub     *Hub
	Logger  Logger

	// SuppressionWindow is how long after an API save the file
	// watcher treats backend-file changes as the save's own write.
	SuppressionWindow time.Duration
}

// Service owns the relay's copy of the dashboard document. Saves strip
// the client's _saveId before persisting and echo it in the broadcast,
// so the originating client can ignore the notification its own write
// produced.
type Service struct {
	backend           statestore.Backend
	hub               *Hub
	logger            Logger
	schema            *jsonschema.Schema
	suppressionWindow time.Duration

	mu            sync.Mutex
	suppressUntil time.Time
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(0, opts.Logger)
	}
	suppressionWindow := opts.SuppressionWindow
	if suppressionWindow <= 0 {
		suppressionWindow = defaultSuppressionWindow
	}
	schema, err := compileConfigSchema()
	if err != nil {
		return nil, err
	}
	return &Service{
		backend:           opts.Backend,
		hub:               hub,
		logger:            opts.Logger,
		schema:            schema,
		suppressionWindow: suppressionWindow,
	}, nil
}

func (s *Service) Hub() *Hub {
	return s.hub
}

// LoadDocument returns the saved document, or an empty object when
// nothing has been saved yet. Unreadable state is treated as absent.
func (s *Service) LoadDocument() map[string]any {
	data, err := s.backend.Load()
	if err != nil {
		s.logf("config load failed: %v", err)
		return map[string]any{}
	}
	if data == nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logf("config state is malformed: %v", err)
		return map[string]any{}
	}
	return doc
}

// SaveDocument validates, strips _saveId, persists, and broadcasts a
// config-updated notification carrying the stripped save id. The
// returned document is what was stored.
func (s *Service) SaveDocument(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidDocument)
	}
	if err := s.validate(doc); err != nil {
		return nil, err
	}

	saveID, _ := doc["_saveId"].(string)
	delete(doc, "_saveId")

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.suppressUntil = time.Now().Add(s.suppressionWindow)
	s.mu.Unlock()
	if err := s.backend.Save(data); err != nil {
		return nil, err
	}

	s.NotifyUpdated(saveID)
	return doc, nil
}

func (s *Service) validate(doc map[string]any) error {
	// Round trip through encoding/json so numbers take the form the
	// validator expects regardless of how the caller decoded them.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := s.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// NotifyUpdated broadcasts a config-updated event. saveID may be
// empty, e.g. for out-of-band file edits, in which case every client
// treats the change as external.
func (s *Service) NotifyUpdated(saveID string) {
	payload := map[string]any{"type": "config-updated"}
	if saveID != "" {
		payload["saveId"] = saveID
	}
	s.hub.Broadcast(payload)
}

// Brightness returns just the brightness section, consumed by the
// backlight shell script.
func (s *Service) Brightness() map[string]any {
	doc := s.LoadDocument()
	if section, ok := doc["brightness"].(map[string]any); ok {
		return section
	}
	return map[string]any{}
}

// WatchBackendFile broadcasts config-updated (with no save id) when
// the backing JSON file changes out-of-band, e.g. a hand edit. Writes
// made through SaveDocument are suppressed for the configured window.
// Returns immediately when the backend is not file-based.
func (s *Service) WatchBackendFile(ctx context.Context) error {
	fileBackend, ok := s.backend.(*statestore.JSONFileBackend)
	if !ok {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(fileBackend.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(fileBackend.Path())

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s.mu.Lock()
				suppressed := time.Now().Before(s.suppressUntil)
				s.mu.Unlock()
				if suppressed {
					continue
				}
				s.logf("config file changed out-of-band; notifying subscribers")
				s.NotifyUpdated("")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logf("config file watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
