package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEventColumns = `
	SELECT
		event_id, kind, token, account, investigation_id,
		amount, reward, balance, occurred_at
	FROM ledger_events FINAL
`

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace, the store is append-only.
	exists, err := s.exists(ctx, e.EventID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO ledger_events (
			event_id, kind, token, account, investigation_id,
			amount, reward, balance, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		e.EventID, string(e.Kind), e.Token.Hex(), e.Account.Hex(), e.InvestigationID,
		toBig(e.Amount), toBig(e.Reward), toBig(e.Balance), e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// GetByToken retrieves events for a token within [start, end] (inclusive, ms), ordered by time ASC.
func (s *EventStore) GetByToken(ctx context.Context, token common.Address, start, end int64) ([]*domain.LedgerEvent, error) {
	query := selectEventColumns + `
		WHERE token = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, token.Hex(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByInvestigation retrieves all events of an investigation, ordered by time ASC.
func (s *EventStore) GetByInvestigation(ctx context.Context, investigationID uint64) ([]*domain.LedgerEvent, error) {
	query := selectEventColumns + `
		WHERE investigation_id = ?
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, investigationID)
	if err != nil {
		return nil, fmt.Errorf("query by investigation: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByAccount retrieves all events of an account, ordered by time ASC.
func (s *EventStore) GetByAccount(ctx context.Context, account common.Address) ([]*domain.LedgerEvent, error) {
	query := selectEventColumns + `
		WHERE account = ?
		ORDER BY occurred_at ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, account.Hex())
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events FINAL WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows chRows) ([]*domain.LedgerEvent, error) {
	events := make([]*domain.LedgerEvent, 0)

	for rows.Next() {
		var (
			e                       domain.LedgerEvent
			kind, token, account    string
			amount, reward, balance big.Int
		)
		err := rows.Scan(
			&e.EventID, &kind, &token, &account, &e.InvestigationID,
			&amount, &reward, &balance, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.Token = common.HexToAddress(token)
		e.Account = common.HexToAddress(account)
		if e.Amount, err = fromBig(&amount); err != nil {
			return nil, err
		}
		if e.Reward, err = fromBig(&reward); err != nil {
			return nil, err
		}
		if e.Balance, err = fromBig(&balance); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

// toBig converts an amount for a UInt256 column; nil is stored as zero.
func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %s overflows uint256", v.String())
	}
	return out, nil
}
