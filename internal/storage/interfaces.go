package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"staking-ledger/internal/domain"
)

// Ledger provides serialized, atomic access to staking ledger state:
// the token registry, per-token balances and investigations.
type Ledger interface {
	// Update runs fn in a single unit of work. If fn returns an error,
	// every write made through tx is discarded and the error is returned.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error

	// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of ledger operations available inside a unit of work.
type LedgerTx interface {
	// AddToken marks token as available. Adding an existing token is a no-op.
	AddToken(ctx context.Context, token common.Address) error

	// IsTokenAvailable reports whether token was added.
	IsTokenAvailable(ctx context.Context, token common.Address) (bool, error)

	// ListTokens returns all available tokens in insertion order.
	ListTokens(ctx context.Context) ([]common.Address, error)

	// GetBalance returns the custodial balance of token, zero if unknown.
	GetBalance(ctx context.Context, token common.Address) (*uint256.Int, error)

	// Credit increases the balance of token and returns the new balance.
	Credit(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error)

	// Debit decreases the balance of token and returns the new balance.
	// Returns ErrInsufficientBalance if amount exceeds the balance.
	Debit(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error)

	// InsertInvestigation allocates the next sequential ID, stores the record
	// with that ID and returns it. inv.ID is ignored; inv.EndDate must be nil.
	InsertInvestigation(ctx context.Context, inv *domain.Investigation) (uint64, error)

	// GetInvestigation retrieves an investigation by ID. Returns ErrNotFound if not exists.
	// Inside Update the record is locked until the unit of work ends.
	GetInvestigation(ctx context.Context, id uint64) (*domain.Investigation, error)

	// LastInvestigationID returns the highest allocated ID. Returns ErrNotFound before the first insert.
	LastInvestigationID(ctx context.Context) (uint64, error)

	// GetInvestigationsByUser retrieves all investigations of user, ordered by ID ASC.
	GetInvestigationsByUser(ctx context.Context, user common.Address) ([]*domain.Investigation, error)

	// SettleInvestigation sets the end date of an open investigation.
	// Returns ErrNotFound if not exists, ErrAlreadySettled if already settled.
	SettleInvestigation(ctx context.Context, id uint64, endDate int64) error
}

// EventStore provides access to ledger_events storage.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.LedgerEvent) error

	// GetByToken retrieves events for a token within [start, end] (inclusive, ms), ordered by time ASC.
	GetByToken(ctx context.Context, token common.Address, start, end int64) ([]*domain.LedgerEvent, error)

	// GetByInvestigation retrieves all events of an investigation, ordered by time ASC.
	GetByInvestigation(ctx context.Context, investigationID uint64) ([]*domain.LedgerEvent, error)

	// GetByAccount retrieves all events of an account, ordered by time ASC.
	GetByAccount(ctx context.Context, account common.Address) ([]*domain.LedgerEvent, error)
}
