package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/storage"
)

// Ledger is an in-memory implementation of storage.Ledger.
// Update holds the write lock for the whole unit of work and rolls back
// through an undo journal when fn fails.
type Ledger struct {
	mu sync.RWMutex

	tokens     map[common.Address]bool
	tokenOrder []common.Address
	balances   map[common.Address]*uint256.Int
	records    map[uint64]*domain.Investigation
	byUser     map[common.Address][]uint64
	lastID     uint64
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		tokens:   make(map[common.Address]bool),
		balances: make(map[common.Address]*uint256.Int),
		records:  make(map[uint64]*domain.Investigation),
		byUser:   make(map[common.Address][]uint64),
	}
}

// Update runs fn under the write lock and undoes its writes on error.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{l: l}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// View runs fn under the read lock.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(&ledgerTx{l: l, readOnly: true})
}

// ledgerTx operates on the ledger maps directly. Callers hold l.mu.
type ledgerTx struct {
	l        *Ledger
	readOnly bool
	undo     []func()
}

func (tx *ledgerTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *ledgerTx) AddToken(_ context.Context, token common.Address) error {
	if tx.readOnly {
		return storage.ErrReadOnly
	}
	if token == (common.Address{}) {
		return storage.ErrInvalidInput
	}

	l := tx.l
	if l.tokens[token] {
		return nil
	}

	l.tokens[token] = true
	l.tokenOrder = append(l.tokenOrder, token)
	tx.undo = append(tx.undo, func() {
		delete(l.tokens, token)
		l.tokenOrder = l.tokenOrder[:len(l.tokenOrder)-1]
	})
	return nil
}

func (tx *ledgerTx) IsTokenAvailable(_ context.Context, token common.Address) (bool, error) {
	return tx.l.tokens[token], nil
}

func (tx *ledgerTx) ListTokens(_ context.Context) ([]common.Address, error) {
	tokens := make([]common.Address, len(tx.l.tokenOrder))
	copy(tokens, tx.l.tokenOrder)
	return tokens, nil
}

func (tx *ledgerTx) GetBalance(_ context.Context, token common.Address) (*uint256.Int, error) {
	if b, ok := tx.l.balances[token]; ok {
		return b.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (tx *ledgerTx) Credit(_ context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if tx.readOnly {
		return nil, storage.ErrReadOnly
	}
	if amount == nil {
		return nil, storage.ErrInvalidInput
	}

	prev, existed := tx.l.balances[token]
	current := prev
	if !existed {
		current = new(uint256.Int)
	}

	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return nil, storage.ErrInvalidInput
	}

	tx.setBalance(token, next, prev, existed)
	return next.Clone(), nil
}

func (tx *ledgerTx) Debit(_ context.Context, token common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if tx.readOnly {
		return nil, storage.ErrReadOnly
	}
	if amount == nil {
		return nil, storage.ErrInvalidInput
	}

	prev, existed := tx.l.balances[token]
	if !existed || prev.Lt(amount) {
		return nil, storage.ErrInsufficientBalance
	}

	next := new(uint256.Int).Sub(prev, amount)
	tx.setBalance(token, next, prev, existed)
	return next.Clone(), nil
}

// setBalance stores next and journals the previous value.
func (tx *ledgerTx) setBalance(token common.Address, next, prev *uint256.Int, existed bool) {
	l := tx.l
	l.balances[token] = next
	tx.undo = append(tx.undo, func() {
		if existed {
			l.balances[token] = prev
		} else {
			delete(l.balances, token)
		}
	})
}

func (tx *ledgerTx) InsertInvestigation(_ context.Context, inv *domain.Investigation) (uint64, error) {
	if tx.readOnly {
		return 0, storage.ErrReadOnly
	}
	if inv == nil || inv.Amount == nil || inv.EndDate != nil {
		return 0, storage.ErrInvalidInput
	}

	l := tx.l
	id := l.lastID + 1

	rec := inv.Clone()
	rec.ID = id
	l.records[id] = rec
	l.byUser[rec.User] = append(l.byUser[rec.User], id)
	l.lastID = id

	tx.undo = append(tx.undo, func() {
		delete(l.records, id)
		ids := l.byUser[rec.User]
		if len(ids) <= 1 {
			delete(l.byUser, rec.User)
		} else {
			l.byUser[rec.User] = ids[:len(ids)-1]
		}
		l.lastID = id - 1
	})
	return id, nil
}

func (tx *ledgerTx) GetInvestigation(_ context.Context, id uint64) (*domain.Investigation, error) {
	rec, ok := tx.l.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (tx *ledgerTx) LastInvestigationID(_ context.Context) (uint64, error) {
	if tx.l.lastID == 0 {
		return 0, storage.ErrNotFound
	}
	return tx.l.lastID, nil
}

func (tx *ledgerTx) GetInvestigationsByUser(_ context.Context, user common.Address) ([]*domain.Investigation, error) {
	ids := tx.l.byUser[user]
	result := make([]*domain.Investigation, 0, len(ids))
	for _, id := range ids {
		result = append(result, tx.l.records[id].Clone())
	}
	return result, nil
}

func (tx *ledgerTx) SettleInvestigation(_ context.Context, id uint64, endDate int64) error {
	if tx.readOnly {
		return storage.ErrReadOnly
	}

	rec, ok := tx.l.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.EndDate != nil {
		return storage.ErrAlreadySettled
	}

	end := endDate
	rec.EndDate = &end
	tx.undo = append(tx.undo, func() {
		rec.EndDate = nil
	})
	return nil
}

var (
	_ storage.Ledger   = (*Ledger)(nil)
	_ storage.LedgerTx = (*ledgerTx)(nil)
)
