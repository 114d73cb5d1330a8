package custody

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Vault is an in-process token book with ERC20 balance and allowance
// semantics. The custody account is the only spender.
type Vault struct {
	custody common.Address

	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*uint256.Int // token -> holder -> balance
	allowances map[common.Address]map[common.Address]*uint256.Int // token -> owner -> allowance for custody
}

// NewVault creates an empty vault whose custody account is custody.
func NewVault(custody common.Address) *Vault {
	return &Vault{
		custody:    custody,
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Custody returns the custody account address.
func (v *Vault) Custody() common.Address {
	return v.custody
}

// Mint creates amount of token in account.
func (v *Vault) Mint(_ context.Context, token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.entry(v.balances, token, to)
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		bal.Sub(bal, amount)
		return ErrInvalidAmount
	}
	return nil
}

// Approve sets the amount of token the custody account may pull from owner.
func (v *Vault) Approve(_ context.Context, token, owner common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.entry(v.allowances, token, owner).Set(amount)
	return nil
}

// BalanceOf returns the token balance of account.
func (v *Vault) BalanceOf(token, account common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lookup(v.balances, token, account)
}

// Allowance returns the remaining amount the custody account may pull from owner.
func (v *Vault) Allowance(token, owner common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lookup(v.allowances, token, owner)
}

// Holdings returns the balance of account and its allowance for custody.
func (v *Vault) Holdings(ctx context.Context, token, account common.Address) (*uint256.Int, *uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return lookup(v.balances, token, account), lookup(v.allowances, token, account), nil
}

// TransferIn pulls amount from account into custody, consuming allowance.
func (v *Vault) TransferIn(ctx context.Context, token, from common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}

	if from == v.custody {
		return ErrSelfTransfer
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	allowance := v.entry(v.allowances, token, from)
	if allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := v.move(token, from, v.custody, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// TransferOut sends amount from custody to account.
func (v *Vault) TransferOut(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	if to == v.custody {
		return ErrSelfTransfer
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.move(token, v.custody, to, amount)
}

// move transfers amount between holders. Callers hold v.mu.
func (v *Vault) move(token, from, to common.Address, amount *uint256.Int) error {
	src := v.entry(v.balances, token, from)
	if src.Lt(amount) {
		return ErrInsufficientBalance
	}
	src.Sub(src, amount)
	dst := v.entry(v.balances, token, to)
	dst.Add(dst, amount)
	return nil
}

// entry returns the mutable value at book[token][account], creating it.
func (v *Vault) entry(book map[common.Address]map[common.Address]*uint256.Int, token, account common.Address) *uint256.Int {
	holders, ok := book[token]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		book[token] = holders
	}
	val, ok := holders[account]
	if !ok {
		val = new(uint256.Int)
		holders[account] = val
	}
	return val
}

func lookup(book map[common.Address]map[common.Address]*uint256.Int, token, account common.Address) *uint256.Int {
	if val, ok := book[token][account]; ok {
		return val.Clone()
	}
	return new(uint256.Int)
}

// Verify interface compliance at compile time.
var _ Book = (*Vault)(nil)
