// Package events records committed ledger operations and fans them out to
// live subscribers.
package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/observability"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Subscription receives published events on C until cancelled.
type Subscription struct {
	C <-chan *domain.LedgerEvent

	ch    chan *domain.LedgerEvent
	token *common.Address
}

func (s *Subscription) matches(e *domain.LedgerEvent) bool {
	return s.token == nil || *s.token == e.Token
}

// Hub broadcasts ledger events to subscribers. A subscriber whose queue is
// full misses the event; publishing never blocks the ledger.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub. buffer <= 0 means DefaultBufferSize.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. A nil token receives events of all tokens.
func (h *Hub) Subscribe(token *common.Address) *Subscription {
	ch := make(chan *domain.LedgerEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch}
	if token != nil {
		t := *token
		sub.token = &t
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	observability.UpdateStreamSubscribers(n)
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	n := len(h.subs)
	h.mu.Unlock()

	observability.UpdateStreamSubscribers(n)
}

// Publish delivers e to every matching subscriber without blocking.
func (h *Hub) Publish(e *domain.LedgerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if !sub.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			observability.RecordStreamDropped()
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("event_id", e.EventID),
				zap.String("kind", e.Kind.String()))
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
