package postgres

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"staking-ledger/internal/custody"
	"staking-ledger/internal/observability"
)

// Custody implements custody.Book on the ledger database, so token holdings
// are persisted with the ledger balances they back.
// Every call is one transaction; balance rows are locked in address order.
type Custody struct {
	pool    *Pool
	custody common.Address
}

// NewCustody creates a custody book whose custody account is account.
func NewCustody(pool *Pool, account common.Address) *Custody {
	return &Custody{pool: pool, custody: account}
}

// Compile-time interface check.
var _ custody.Book = (*Custody)(nil)

// Custody returns the custody account address.
func (c *Custody) Custody() common.Address {
	return c.custody
}

// Mint creates amount of token in account to.
func (c *Custody) Mint(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return custody.ErrInvalidAmount
	}
	return c.run(ctx, "custody_mint", func(tx pgx.Tx) error {
		balances, err := lockBalances(ctx, tx, token, to)
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(balances[to], amount)
		if overflow {
			return custody.ErrInvalidAmount
		}
		return setBalance(ctx, tx, token, to, next)
	})
}

// Approve sets the amount of token the custody account may pull from owner.
func (c *Custody) Approve(ctx context.Context, token, owner common.Address, amount *uint256.Int) error {
	if amount == nil {
		return custody.ErrInvalidAmount
	}
	return c.run(ctx, "custody_approve", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO custody_allowances (token, owner, allowance, updated_at)
			VALUES ($1, $2, $3::text::numeric, NOW())
			ON CONFLICT (token, owner) DO UPDATE
			SET allowance = EXCLUDED.allowance,
			    updated_at = NOW()
		`, token.Bytes(), owner.Bytes(), amount.Dec())
		if err != nil {
			return fmt.Errorf("set allowance: %w", err)
		}
		return nil
	})
}

// Holdings returns the balance of account and the allowance it granted custody.
func (c *Custody) Holdings(ctx context.Context, token, account common.Address) (*uint256.Int, *uint256.Int, error) {
	var balance, allowance string
	err := c.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT balance FROM custody_balances WHERE token = $1 AND account = $2), 0)::text,
			COALESCE((SELECT allowance FROM custody_allowances WHERE token = $1 AND owner = $2), 0)::text
	`, token.Bytes(), account.Bytes()).Scan(&balance, &allowance)
	if err != nil {
		return nil, nil, fmt.Errorf("get holdings: %w", err)
	}

	bal, err := parseAmount(balance)
	if err != nil {
		return nil, nil, err
	}
	allow, err := parseAmount(allowance)
	if err != nil {
		return nil, nil, err
	}
	return bal, allow, nil
}

// TransferIn pulls amount from account into custody, consuming allowance.
// The allowance is checked before the balance.
func (c *Custody) TransferIn(ctx context.Context, token, from common.Address, amount *uint256.Int) error {
	if amount == nil {
		return custody.ErrInvalidAmount
	}
	if from == c.custody {
		return custody.ErrSelfTransfer
	}
	return c.run(ctx, "custody_transfer_in", func(tx pgx.Tx) error {
		var raw string
		err := tx.QueryRow(ctx, `
			SELECT allowance::text FROM custody_allowances
			WHERE token = $1 AND owner = $2
			FOR UPDATE
		`, token.Bytes(), from.Bytes()).Scan(&raw)
		if isNotFoundError(err) {
			return custody.ErrInsufficientAllowance
		}
		if err != nil {
			return fmt.Errorf("lock allowance: %w", err)
		}
		allowance, err := parseAmount(raw)
		if err != nil {
			return err
		}
		if allowance.Lt(amount) {
			return custody.ErrInsufficientAllowance
		}

		if err := move(ctx, tx, token, from, c.custody, amount); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE custody_allowances
			SET allowance = allowance - $3::text::numeric,
			    updated_at = NOW()
			WHERE token = $1 AND owner = $2
		`, token.Bytes(), from.Bytes(), amount.Dec())
		if err != nil {
			return fmt.Errorf("consume allowance: %w", err)
		}
		return nil
	})
}

// TransferOut sends amount from custody to account.
func (c *Custody) TransferOut(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return custody.ErrInvalidAmount
	}
	if to == c.custody {
		return custody.ErrSelfTransfer
	}
	return c.run(ctx, "custody_transfer_out", func(tx pgx.Tx) error {
		return move(ctx, tx, token, c.custody, to, amount)
	})
}

func (c *Custody) run(ctx context.Context, op string, fn func(tx pgx.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin custody tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit custody tx: %w", err)
	}
	return nil
}

// move transfers amount between two accounts inside tx.
func move(ctx context.Context, tx pgx.Tx, token, from, to common.Address, amount *uint256.Int) error {
	balances, err := lockBalances(ctx, tx, token, from, to)
	if err != nil {
		return err
	}
	if balances[from].Lt(amount) {
		return custody.ErrInsufficientBalance
	}

	dst, overflow := new(uint256.Int).AddOverflow(balances[to], amount)
	if overflow {
		return custody.ErrInvalidAmount
	}
	if err := setBalance(ctx, tx, token, from, new(uint256.Int).Sub(balances[from], amount)); err != nil {
		return err
	}
	return setBalance(ctx, tx, token, to, dst)
}

// lockBalances creates missing balance rows and locks the rows of accounts
// in address order, so opposing transfers cannot deadlock.
func lockBalances(ctx context.Context, tx pgx.Tx, token common.Address, accounts ...common.Address) (map[common.Address]*uint256.Int, error) {
	keys := make([][]byte, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, a.Bytes())
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	for _, key := range keys {
		_, err := tx.Exec(ctx, `
			INSERT INTO custody_balances (token, account, balance)
			VALUES ($1, $2, 0)
			ON CONFLICT (token, account) DO NOTHING
		`, token.Bytes(), key)
		if err != nil {
			return nil, fmt.Errorf("create balance row: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT account, balance::text FROM custody_balances
		WHERE token = $1 AND account = ANY($2)
		ORDER BY account
		FOR UPDATE
	`, token.Bytes(), keys)
	if err != nil {
		return nil, fmt.Errorf("lock balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[common.Address]*uint256.Int, len(accounts))
	for rows.Next() {
		var (
			account []byte
			raw     string
		)
		if err := rows.Scan(&account, &raw); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		bal, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		balances[common.BytesToAddress(account)] = bal
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}

	for _, a := range accounts {
		if _, ok := balances[a]; !ok {
			return nil, fmt.Errorf("balance row of %s missing after insert", a.Hex())
		}
	}
	return balances, nil
}

func setBalance(ctx context.Context, tx pgx.Tx, token, account common.Address, balance *uint256.Int) error {
	_, err := tx.Exec(ctx, `
		UPDATE custody_balances
		SET balance = $3::text::numeric,
		    updated_at = NOW()
		WHERE token = $1 AND account = $2
	`, token.Bytes(), account.Bytes(), balance.Dec())
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}
