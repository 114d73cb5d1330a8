package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind identifies the ledger operation that produced an event.
type EventKind string

const (
	EventTokenAdded     EventKind = "TOKEN_ADDED"
	EventPoolFunded     EventKind = "POOL_FUNDED"
	EventDeposited      EventKind = "DEPOSITED"
	EventWithdrawn      EventKind = "WITHDRAWN"
	EventRefunded       EventKind = "REFUNDED"
	EventOwnerWithdrawn EventKind = "OWNER_WITHDRAWN"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventTokenAdded, EventPoolFunded, EventDeposited,
		EventWithdrawn, EventRefunded, EventOwnerWithdrawn:
		return true
	}
	return false
}

// LedgerEvent is an append-only record of a committed ledger operation.
// Corresponds to ledger_events table in ClickHouse.
type LedgerEvent struct {
	EventID         string         `json:"event_id"` // deterministic hash, see idhash
	Kind            EventKind      `json:"kind"`
	Token           common.Address `json:"token"`
	Account         common.Address `json:"account"`                    // acting account or payee
	InvestigationID *uint64        `json:"investigation_id,omitempty"` // set for stake events
	Amount          *uint256.Int   `json:"amount"`                     // principal or transferred amount
	Reward          *uint256.Int   `json:"reward"`                     // accrued reward, zero if none
	Balance         *uint256.Int   `json:"balance"`                    // token balance after the operation
	OccurredAt      int64          `json:"occurred_at"`                // Unix timestamp in milliseconds
}
