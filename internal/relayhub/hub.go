// Package relayhub implements the relay side of dashboard config
// synchronization: the authoritative document store, the save-id echo
// that lets clients suppress their own updates, and fan-out of
// config-updated notifications to live subscribers.
package relayhub

import (
	"encoding/json"
	"sync"
)

const defaultSubscriberQueueSize = 10

// Logger is the minimal logging surface; log.Default() satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Hub manages live-channel subscribers. Each subscriber owns a bounded
// queue; a subscriber that cannot keep up is dropped rather than
// allowed to stall the broadcast.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	queueSize   int
	logger      Logger
}

type Subscriber struct {
	hub  *Hub
	ch   chan []byte
	once sync.Once
}

func NewHub(queueSize int, logger Logger) *Hub {
	if queueSize <= 0 {
		queueSize = defaultSubscriberQueueSize
	}
	return &Hub{
		subscribers: map[*Subscriber]struct{}{},
		queueSize:   queueSize,
		logger:      logger,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{hub: h, ch: make(chan []byte, h.queueSize)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()
	h.logf("new subscriber (total: %d)", count)
	return sub
}

// Broadcast sends the JSON encoding of message to every subscriber.
// Subscribers with full queues are removed.
func (h *Hub) Broadcast(message any) {
	encoded, err := json.Marshal(message)
	if err != nil {
		h.logf("broadcast encode failed: %v", err)
		return
	}
	var dead []*Subscriber
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- encoded:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()
	for _, sub := range dead {
		sub.once.Do(func() { close(sub.ch) })
		h.logf("removed stalled subscriber")
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}

// Events yields encoded messages. The channel is closed when the hub
// drops the subscriber.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	_, present := s.hub.subscribers[s]
	delete(s.hub.subscribers, s)
	s.hub.mu.Unlock()
	if present {
		s.once.Do(func() { close(s.ch) })
	}
}
