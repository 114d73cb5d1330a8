// Package custody moves fungible tokens between user accounts and the
// ledger's custody account.
package custody

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transfer errors.
var (
	// ErrInsufficientBalance is returned when the sender holds less than the amount.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")

	// ErrInsufficientAllowance is returned when the custody account is not
	// approved to pull the amount from the sender.
	ErrInsufficientAllowance = errors.New("custody: insufficient allowance")

	// ErrInvalidAmount is returned for nil amounts.
	ErrInvalidAmount = errors.New("custody: invalid amount")

	// ErrSelfTransfer is returned when the custody account is both sides of a transfer.
	ErrSelfTransfer = errors.New("custody: transfer between custody and itself")
)

// Transferrer is the fungible-token transfer primitive used by the ledger.
// Each call is atomic: it either moves the full amount or nothing.
type Transferrer interface {
	// Custody returns the account holding the ledger's tokens.
	Custody() common.Address

	// TransferIn pulls amount of token from account into custody.
	TransferIn(ctx context.Context, token, from common.Address, amount *uint256.Int) error

	// TransferOut sends amount of token from custody to account.
	TransferOut(ctx context.Context, token, to common.Address, amount *uint256.Int) error
}

// Book is a Transferrer whose accounts can be seeded and inspected.
// Development endpoints use it to mint and approve test tokens.
type Book interface {
	Transferrer

	// Mint creates amount of token in account to.
	Mint(ctx context.Context, token, to common.Address, amount *uint256.Int) error

	// Approve sets the amount of token the custody account may pull from owner.
	Approve(ctx context.Context, token, owner common.Address, amount *uint256.Int) error

	// Holdings returns the balance of account and the allowance it granted custody.
	Holdings(ctx context.Context, token, account common.Address) (balance, allowance *uint256.Int, err error)
}
