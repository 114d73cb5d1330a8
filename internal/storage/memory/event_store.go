package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.LedgerEvent
	keys map[string]bool
}

// NewEventStore creates a new in-memory ledger event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]*domain.LedgerEvent, 0),
		keys: make(map[string]bool),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[e.EventID] {
		return storage.ErrDuplicateKey
	}

	s.data = append(s.data, copyEvent(e))
	s.keys[e.EventID] = true
	return nil
}

// GetByToken retrieves events for a token within [start, end] (inclusive, ms), ordered by time ASC.
func (s *EventStore) GetByToken(_ context.Context, token common.Address, start, end int64) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.Token == token && e.OccurredAt >= start && e.OccurredAt <= end
	}), nil
}

// GetByInvestigation retrieves all events of an investigation, ordered by time ASC.
func (s *EventStore) GetByInvestigation(_ context.Context, investigationID uint64) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.InvestigationID != nil && *e.InvestigationID == investigationID
	}), nil
}

// GetByAccount retrieves all events of an account, ordered by time ASC.
func (s *EventStore) GetByAccount(_ context.Context, account common.Address) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.Account == account
	}), nil
}

func (s *EventStore) filter(match func(*domain.LedgerEvent) bool) []*domain.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.LedgerEvent, 0)
	for _, e := range s.data {
		if match(e) {
			result = append(result, copyEvent(e))
		}
	}

	// Stable: events at the same millisecond keep insertion order.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt < result[j].OccurredAt
	})
	return result
}

func copyEvent(e *domain.LedgerEvent) *domain.LedgerEvent {
	c := *e
	if e.InvestigationID != nil {
		id := *e.InvestigationID
		c.InvestigationID = &id
	}
	if e.Amount != nil {
		c.Amount = e.Amount.Clone()
	}
	if e.Reward != nil {
		c.Reward = e.Reward.Clone()
	}
	if e.Balance != nil {
		c.Balance = e.Balance.Clone()
	}
	return &c
}

var _ storage.EventStore = (*EventStore)(nil)
