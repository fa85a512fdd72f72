package events

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// HubConfig holds configuration for the event hub.
type HubConfig struct {
	InitialBacklog int // Per-subscriber starting capacity (default: 64)
	MaxBacklog     int // Subscribers falling further behind are dropped (default: 4096)
}

// DefaultHubConfig returns default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		InitialBacklog: 64,
		MaxBacklog:     4096,
	}
}

// Filter selects events for a subscription. A nil Filter accepts everything.
type Filter func(Event) bool

// Hub fans committed events out to subscribers. Publish never blocks on a
// slow subscriber; one that overflows its backlog is closed.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscription receives events from a Hub.
type Subscription struct {
	id      uint64
	hub     *Hub
	filter  Filter
	backlog *Backlog[Event]
}

// Receive blocks until the next event. It returns false once the
// subscription is closed.
func (s *Subscription) Receive() (Event, bool) {
	return s.backlog.Receive()
}

// Drain returns up to n queued events without blocking.
func (s *Subscription) Drain(n int) []Event {
	return s.backlog.Drain(n)
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.backlog.Close()
}

// Stats returns the subscription's backlog counters.
func (s *Subscription) Stats() BacklogStats {
	return s.backlog.Stats()
}

// Subscribe registers a new subscription. On a stopped hub the returned
// subscription is already closed.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:      h.nextID,
		hub:     h,
		filter:  filter,
		backlog: NewBacklog[Event](h.cfg.InitialBacklog, h.cfg.MaxBacklog),
	}
	if h.closed {
		sub.backlog.Close()
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Publish implements Publisher.
func (h *Hub) Publish(e Event) {
	h.published.Add(1)

	var overflowed []*Subscription

	h.mu.RLock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		if err := sub.backlog.Send(e); errors.Is(err, ErrBacklogFull) {
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		h.dropped.Add(1)
		h.logger.Warn("dropping slow event subscriber",
			"subscriber", sub.id,
			"backlog", sub.backlog.Len(),
		)
		sub.Close()
	}
}

// Stop closes every subscription. Later subscriptions start closed.
func (h *Hub) Stop() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.backlog.Close()
	}
	h.logger.Info("event hub stopped", "subscribers", len(subs))
}

// HubStats contains hub counters.
type HubStats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// Stats returns hub counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return HubStats{
		Subscribers: n,
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}
