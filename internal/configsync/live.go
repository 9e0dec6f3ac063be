package configsync

import (
	"context"
	"time"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 30 * time.Second
)

// BackoffDelay returns the reconnect delay after failures consecutive
// live-channel failures: base doubled per failure, capped at max.
func BackoffDelay(failures int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type LiveUpdaterOptions struct {
	Pending     *PendingSaves
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Logger      Logger
}

// LiveUpdater keeps the local document fresh when the relay copy is
// changed by another client. It holds one streaming subscription open
// at a time, reconnecting with exponential backoff, and re-fetches the
// document on any config-updated event that did not originate from
// this client's own push.
type LiveUpdater struct {
	store       *Store
	client      RelayClient
	pending     *PendingSaves
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      Logger
}

func NewLiveUpdater(store *Store, client RelayClient, opts LiveUpdaterOptions) *LiveUpdater {
	pending := opts.Pending
	if pending == nil {
		pending = NewPendingSaves(0)
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	backoffMax := opts.BackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultBackoffMax
	}
	return &LiveUpdater{
		store:       store,
		client:      client,
		pending:     pending,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		logger:      opts.Logger,
	}
}

// Run blocks until ctx is cancelled. Stream failure is never fatal;
// every disconnect schedules a retry.
func (l *LiveUpdater) Run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		stream, err := l.client.Subscribe(ctx)
		if err != nil {
			failures++
			l.logf("live channel connect failed (attempt %d): %v", failures, err)
			if !sleepContext(ctx, BackoffDelay(failures, l.backoffBase, l.backoffMax)) {
				return
			}
			continue
		}
		failures = 0
		l.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		failures++
		if !sleepContext(ctx, BackoffDelay(failures, l.backoffBase, l.backoffMax)) {
			return
		}
	}
}

func (l *LiveUpdater) consume(ctx context.Context, stream EventStream) {
	for {
		event, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				l.logf("live channel closed: %v", err)
			}
			return
		}
		l.HandleEvent(ctx, event)
	}
}

// HandleEvent applies one live-channel event. An event carrying a save
// id from this client's pending set is its own write echoing back and
// is dropped; anything else marked config-updated triggers a re-fetch.
func (l *LiveUpdater) HandleEvent(ctx context.Context, event Event) {
	if event.Type != EventConfigUpdated {
		return
	}
	if event.SaveID != "" && l.pending.Consume(event.SaveID) {
		return
	}
	cfg, err := l.client.FetchConfig(ctx)
	if err != nil {
		l.logf("config re-fetch failed: %v", err)
		return
	}
	l.store.ApplyRemote(cfg)
}

func (l *LiveUpdater) logf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
