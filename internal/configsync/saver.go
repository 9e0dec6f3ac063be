package configsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSaveDebounce = 500 * time.Millisecond
	defaultPendingTTL   = 10 * time.Second
)

// PendingSaves tracks the save ids of in-flight pushes so the live
// channel can tell the client's own writes from external ones. Entries
// expire after a fixed TTL in case the matching notification never
// arrives.
type PendingSaves struct {
	mu     sync.Mutex
	ttl    time.Duration
	timers map[string]*time.Timer
}

func NewPendingSaves(ttl time.Duration) *PendingSaves {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &PendingSaves{
		ttl:    ttl,
		timers: map[string]*time.Timer{},
	}
}

func (p *PendingSaves) Add(saveID string) {
	if saveID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[saveID]; ok {
		timer.Stop()
	}
	p.timers[saveID] = time.AfterFunc(p.ttl, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.timers, saveID)
	})
}

// Consume removes saveID and reports whether it was present.
func (p *PendingSaves) Consume(saveID string) bool {
	if saveID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	timer, ok := p.timers[saveID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(p.timers, saveID)
	return true
}

func (p *PendingSaves) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

func (p *PendingSaves) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
}

type SaverOptions struct {
	Debounce time.Duration
	Pending  *PendingSaves
	Logger   Logger

	// NewSaveID overrides save-id generation; tests inject fixed ids.
	NewSaveID func() string
}

// Saver mirrors the persisted subset of the store to the relay.
// Changes are coalesced behind a debounce window, so only the most
// recent document after a burst of edits is ever transmitted. Push
// failures are swallowed: local persistence already succeeded and the
// remote copy is a best-effort mirror.
type Saver struct {
	store     *Store
	client    RelayClient
	debounce  time.Duration
	pending   *PendingSaves
	logger    Logger
	newSaveID func() string

	mu          sync.Mutex
	timer       *time.Timer
	closed      bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	inflight    sync.WaitGroup
}

func NewSaver(store *Store, client RelayClient, opts SaverOptions) *Saver {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultSaveDebounce
	}
	pending := opts.Pending
	if pending == nil {
		pending = NewPendingSaves(0)
	}
	newSaveID := opts.NewSaveID
	if newSaveID == nil {
		newSaveID = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Saver{
		store:     store,
		client:    client,
		debounce:  debounce,
		pending:   pending,
		logger:    opts.Logger,
		newSaveID: newSaveID,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Pending exposes the save-id set so the live updater can share it.
func (s *Saver) Pending() *PendingSaves {
	return s.pending
}

// Start subscribes to the persisted-subset projection. Safe to call
// once; Close tears the subscription down.
func (s *Saver) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.unsubscribe != nil {
		return
	}
	s.unsubscribe = s.store.Subscribe(PersistedProjection, func(Snapshot) {
		s.schedule()
	})
}

func (s *Saver) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// Flush pushes immediately, bypassing the debounce window. Used on
// shutdown so a trailing edit is not lost to a cancelled timer.
func (s *Saver) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Saver) flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	cfg := s.store.Config()
	saveID := s.newSaveID()
	s.pending.Add(saveID)
	if err := s.client.PushConfig(s.ctx, cfg, saveID); err != nil {
		s.logf("config push failed: %v", err)
	}
}

// Close cancels the pending timer and subscription and waits for any
// in-flight push to finish or fail.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	s.inflight.Wait()
}

func (s *Saver) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
