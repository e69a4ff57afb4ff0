package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub is an in-process Source and Publisher. Publish never blocks: each
// subscriber buffers one event and later events coalesce into it.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*hubSub
	nextID uint64
	logger *slog.Logger
}

// NewHub creates an empty hub. A nil logger discards output.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		subs:   make(map[uint64]*hubSub),
		logger: logger,
	}
}

type hubSub struct {
	hub    *Hub
	id     uint64
	filter Filter
	ch     chan Event
	once   sync.Once
	stop   func() bool
}

func (s *hubSub) Events() <-chan Event { return s.ch }

func (s *hubSub) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Subscribe registers a subscriber for f.
func (h *Hub) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if _, err := ParseTable(string(f.Table)); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.nextID++
	sub := &hubSub{hub: h, id: h.nextID, filter: f, ch: make(chan Event, 1)}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	sub.stop = context.AfterFunc(ctx, sub.Close)
	h.logger.Debug("realtime subscribe", "table", f.Table, "project_id", f.ProjectID, "sub", sub.id)
	return sub, nil
}

// Publish delivers e to every matching subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// A trigger is already pending; the refetch it causes covers e too.
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
