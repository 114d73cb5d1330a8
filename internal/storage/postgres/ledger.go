package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/observability"
	"staking-ledger/internal/storage"
)

// investigationCounter is the ledger_counters row allocating investigation IDs.
// A counter row instead of a sequence keeps IDs gap-free across rollbacks.
const investigationCounter = "investigation_id"

// Ledger implements storage.Ledger using PostgreSQL.
// Every Update is one READ COMMITTED transaction; balance rows and
// investigation rows are locked with SELECT ... FOR UPDATE or UPDATE.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var (
	_ storage.Ledger   = (*Ledger)(nil)
	_ storage.LedgerTx = (*ledgerTx)(nil)
)

// Update runs fn inside a transaction and commits if fn succeeds.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "update", time.Since(start).Seconds(), err)
	}()
	return l.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, false, fn)
}

// View runs fn inside a read-only repeatable-read transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.LedgerTx) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "view", time.Since(start).Seconds(), err)
	}()
	return l.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, true, fn)
}

func (l *Ledger) run(ctx context.Context, opts pgx.TxOptions, readOnly bool, fn func(tx storage.LedgerTx) error) error {
	tx, err := l.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := fn(&ledgerTx{tx: tx, readOnly: readOnly}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *ledgerTx) AddToken(ctx context.Context, token common.Address) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if token == (common.Address{}) {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO tokens (address) VALUES ($1)
		ON CONFLICT (address) DO NOTHING
	`, token.Bytes())
	if err != nil {
		return fmt.Errorf("add token: %w", err)
	}
	return nil
}

func (t *ledgerTx) IsTokenAvailable(ctx context.Context, token common.Address) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM tokens WHERE address = $1)
	`, token.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return exists, nil
}

func (t *ledgerTx) ListTokens(ctx context.Context) ([]common.Address, error) {
	rows, err := t.tx.Query(ctx, `SELECT address FROM tokens ORDER BY added_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]common.Address, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, common.BytesToAddress(raw))
	}
	return tokens, rows.Err()
}

func (t *ledgerTx) GetBalance(ctx context.Context, token common.Address) (*uint256.Int, error) {
	var balance string
	err := t.tx.QueryRow(ctx, `
		SELECT balance::text FROM token_balances WHERE token = $1
	`, token.Bytes()).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return parseAmount(balance)
}

func (t *ledgerTx) Credit(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if t.readOnly {
		return nil, storage.ErrReadOnly
	}
	if amount == nil {
		return nil, storage.ErrInvalidInput
	}

	var balance string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO token_balances (token, balance, updated_at)
		VALUES ($1, $2::text::numeric, NOW())
		ON CONFLICT (token) DO UPDATE
		SET balance = token_balances.balance + EXCLUDED.balance,
		    updated_at = NOW()
		RETURNING balance::text
	`, token.Bytes(), amount.Dec()).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}

	next, err := parseAmount(balance)
	if err != nil {
		return nil, storage.ErrInvalidInput
	}
	return next, nil
}

func (t *ledgerTx) Debit(ctx context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if t.readOnly {
		return nil, storage.ErrReadOnly
	}
	if amount == nil {
		return nil, storage.ErrInvalidInput
	}

	var balance string
	err := t.tx.QueryRow(ctx, `
		UPDATE token_balances
		SET balance = balance - $2::text::numeric,
		    updated_at = NOW()
		WHERE token = $1 AND balance >= $2::text::numeric
		RETURNING balance::text
	`, token.Bytes(), amount.Dec()).Scan(&balance)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit balance: %w", err)
	}
	return parseAmount(balance)
}

func (t *ledgerTx) InsertInvestigation(ctx context.Context, inv *domain.Investigation) (uint64, error) {
	if t.readOnly {
		return 0, storage.ErrReadOnly
	}
	if inv == nil || inv.Amount == nil || inv.EndDate != nil {
		return 0, storage.ErrInvalidInput
	}

	// Row lock on the counter serializes concurrent deposits.
	var id int64
	err := t.tx.QueryRow(ctx, `
		UPDATE ledger_counters SET value = value + 1
		WHERE name = $1
		RETURNING value
	`, investigationCounter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate investigation id: %w", err)
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO investigations (
			id, user_address, token, amount, start_date, end_date
		) VALUES ($1, $2, $3, $4::text::numeric, $5, NULL)
	`,
		id,
		inv.User.Bytes(),
		inv.Token.Bytes(),
		inv.Amount.Dec(),
		inv.StartDate,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert investigation: %w", err)
	}
	return uint64(id), nil
}

func (t *ledgerTx) GetInvestigation(ctx context.Context, id uint64) (*domain.Investigation, error) {
	if id == 0 {
		return nil, storage.ErrNotFound
	}

	query := `
		SELECT id, user_address, token, amount::text, start_date, end_date
		FROM investigations
		WHERE id = $1
	`
	if !t.readOnly {
		query += ` FOR UPDATE`
	}

	inv, err := scanInvestigation(t.tx.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get investigation by id: %w", err)
	}
	return inv, nil
}

func (t *ledgerTx) LastInvestigationID(ctx context.Context) (uint64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		SELECT value FROM ledger_counters WHERE name = $1
	`, investigationCounter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get last investigation id: %w", err)
	}
	if id == 0 {
		return 0, storage.ErrNotFound
	}
	return uint64(id), nil
}

func (t *ledgerTx) GetInvestigationsByUser(ctx context.Context, user common.Address) ([]*domain.Investigation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, user_address, token, amount::text, start_date, end_date
		FROM investigations
		WHERE user_address = $1
		ORDER BY id ASC
	`, user.Bytes())
	if err != nil {
		return nil, fmt.Errorf("query investigations by user: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Investigation, 0)
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan investigation: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (t *ledgerTx) SettleInvestigation(ctx context.Context, id uint64, endDate int64) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE investigations SET end_date = $2
		WHERE id = $1 AND end_date IS NULL
	`, int64(id), endDate)
	if err != nil {
		return fmt.Errorf("settle investigation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish a missing record from a settled one.
	if _, err := t.GetInvestigation(ctx, id); err != nil {
		return err
	}
	return storage.ErrAlreadySettled
}

// scanInvestigation scans a single row into Investigation.
func scanInvestigation(row pgx.Row) (*domain.Investigation, error) {
	var (
		id      int64
		user    []byte
		token   []byte
		amount  string
		inv     domain.Investigation
		endDate *int64
	)

	if err := row.Scan(&id, &user, &token, &amount, &inv.StartDate, &endDate); err != nil {
		return nil, err
	}

	parsed, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	inv.ID = uint64(id)
	inv.User = common.BytesToAddress(user)
	inv.Token = common.BytesToAddress(token)
	inv.Amount = parsed
	inv.EndDate = endDate
	return &inv, nil
}

// parseAmount parses a NUMERIC(78,0) text value.
func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Join(storage.ErrInvalidInput, fmt.Errorf("parse amount %q: %w", s, err))
	}
	return v, nil
}
