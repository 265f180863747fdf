// Package realtime fans out "table changed" signals to subscribers (SSE
// streams, cache invalidators). Events carry no diff; receivers re-fetch.
package realtime

import (
	"sync"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

type subscriber struct {
	id     string
	tables map[string]bool
	events chan domain.ChangeEvent
}

func (s *subscriber) wants(table string) bool {
	return len(s.tables) == 0 || s.tables[table]
}

// Hub manages subscribers. Slow subscribers drop events instead of
// blocking publishers; since every event means "re-fetch", one delivered
// event is as good as many.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	logger      *zap.Logger
	now         func() time.Time
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		logger:      logger,
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for tables (all tables when empty).
func (h *Hub) Subscribe(tables ...string) (<-chan domain.ChangeEvent, func()) {
	sub := &subscriber{
		id:     uuid.NewString(),
		tables: make(map[string]bool, len(tables)),
		events: make(chan domain.ChangeEvent, subscriberBuffer),
	}
	for _, t := range tables {
		if t != "" {
			sub.tables[t] = true
		}
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("realtime: subscriber registered",
		zap.String("subscriber_id", sub.id),
		zap.Strings("tables", tables),
		zap.Int("total", total),
	)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, sub.id)
			close(sub.events)
			h.mu.Unlock()
			h.logger.Debug("realtime: subscriber removed", zap.String("subscriber_id", sub.id))
		})
	}
	return sub.events, cancel
}

// Publish delivers event to every interested subscriber without blocking.
func (h *Hub) Publish(event domain.ChangeEvent) {
	if event.At.IsZero() {
		event.At = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if !sub.wants(event.Table) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.logger.Debug("realtime: subscriber buffer full, dropping event",
				zap.String("subscriber_id", sub.id),
				zap.String("table", event.Table),
			)
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
