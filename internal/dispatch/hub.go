// Package dispatch fans signal events out to websocket subscribers. Each
// subscriber has a bounded channel; a consumer that cannot keep up is
// disconnected rather than allowed to stall the publisher.
package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalmarket/internal/models"
)

// Event kinds.
const (
	EventSignalNew    = "signal.new"
	EventSignalUpdate = "signal.update"
	EventSignalClose  = "signal.close"
)

// Event is the wire payload pushed to subscribers.
type Event struct {
	Kind       string         `json:"kind"`
	StrategyID string         `json:"strategyId"`
	Symbol     string         `json:"symbol"`
	Signal     *models.Signal `json:"signal,omitempty"`
	At         time.Time      `json:"at"`
}

// Subscription filters which events a connection receives. An empty Symbols
// list means all symbols for the strategy.
type Subscription struct {
	StrategyIDs []string
	Symbols     []string
}

type subscriber struct {
	id         string
	ch         chan Event
	strategies map[string]struct{}
	symbols    map[string]struct{}
}

func (s *subscriber) wants(ev Event) bool {
	if len(s.strategies) > 0 {
		if _, ok := s.strategies[ev.StrategyID]; !ok {
			return false
		}
	}
	if len(s.symbols) > 0 {
		if _, ok := s.symbols[ev.Symbol]; !ok {
			return false
		}
	}
	return true
}

// Hub tracks subscribers and publishes events to the interested ones.
type Hub struct {
	logger *zap.Logger
	buffer int
	mu     sync.RWMutex
	subs   map[string]*subscriber
}

func NewHub(logger *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		logger: logger,
		buffer: buffer,
		subs:   map[string]*subscriber{},
	}
}

// Subscribe registers a consumer and returns its event channel plus an
// unsubscribe func. The channel is closed on unsubscribe or eviction.
func (h *Hub) Subscribe(sub Subscription) (id string, events <-chan Event, cancel func()) {
	s := &subscriber{
		id:         uuid.NewString(),
		ch:         make(chan Event, h.buffer),
		strategies: toSet(sub.StrategyIDs),
		symbols:    toSet(sub.Symbols),
	}

	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()

	return s.id, s.ch, func() { h.remove(s.id) }
}

// Publish delivers the event to every matching subscriber without blocking.
// Subscribers whose buffer is full are evicted.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	var evicted []string
	h.mu.RLock()
	for _, s := range h.subs {
		if !s.wants(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			evicted = append(evicted, s.id)
		}
	}
	h.mu.RUnlock()

	for _, id := range evicted {
		if h.logger != nil {
			h.logger.Warn("slow subscriber evicted", zap.String("subscriber_id", id))
		}
		h.remove(id)
	}
}

// Update replaces a subscriber's filters in place. Unknown ids are ignored,
// which covers a subscriber racing its own eviction.
func (h *Hub) Update(id string, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		s.strategies = toSet(sub.StrategyIDs)
		s.symbols = toSet(sub.Symbols)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(s.ch)
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}
