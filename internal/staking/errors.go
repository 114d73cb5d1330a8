package staking

import (
	"errors"

	"staking-ledger/internal/custody"
	"staking-ledger/internal/reward"
	"staking-ledger/internal/storage"
)

// Ledger errors. Every failure leaves ledger state unchanged.
var (
	// ErrAddressIsEmpty is returned when a token or account address is the zero address.
	ErrAddressIsEmpty = errors.New("address is empty")

	// ErrTokenNotAvailable is returned when an operation targets an unregistered token.
	ErrTokenNotAvailable = errors.New("token not available")

	// ErrNoSuchInvestigation is returned for id 0 or an id never allocated.
	ErrNoSuchInvestigation = errors.New("no such investigation")

	// ErrNotAllowedToWithdraw is returned when the caller does not own the investigation.
	ErrNotAllowedToWithdraw = errors.New("not allowed to withdraw")

	// ErrTokensWereWithdrawn is returned when settling an already settled investigation.
	ErrTokensWereWithdrawn = errors.New("tokens were withdrawn")

	// ErrInsufficientBalance is returned when the ledger or custody balance is too small.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when custody may not pull the amount from the caller.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrNotOwner is returned when an operator-only operation is called by someone else.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidAmount is returned for nil or zero amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountMismatch is returned when a withdrawal amount differs from the principal.
	ErrAmountMismatch = errors.New("amount must equal the investigation principal")

	// ErrCustodyAccount is returned when the custody account itself tries to
	// move tokens into the ledger. Such a transfer changes no holdings.
	ErrCustodyAccount = errors.New("custody account cannot act as a depositor")
)

// Error kinds reported by ErrorKind.
const (
	KindOK                    = "ok"
	KindAddressIsEmpty        = "AddressIsEmpty"
	KindTokenNotAvailable     = "TokenNotAvailable"
	KindNoSuchInvestigation   = "NoSuchInvestigation"
	KindNotAllowedToWithdraw  = "NotAllowedToWithdraw"
	KindTokensWereWithdrawn   = "TokensWereWithdrawn"
	KindInsufficientBalance   = "InsufficientBalance"
	KindInsufficientAllowance = "InsufficientAllowance"
	KindNotOwner              = "NotOwner"
	KindInvalidAmount         = "InvalidAmount"
	KindAmountMismatch        = "AmountMismatch"
	KindCustodyAccount        = "CustodyAccount"
	KindInternal              = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrAddressIsEmpty, KindAddressIsEmpty},
	{ErrTokenNotAvailable, KindTokenNotAvailable},
	{ErrNoSuchInvestigation, KindNoSuchInvestigation},
	{ErrNotAllowedToWithdraw, KindNotAllowedToWithdraw},
	{ErrTokensWereWithdrawn, KindTokensWereWithdrawn},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrInsufficientAllowance, KindInsufficientAllowance},
	{ErrNotOwner, KindNotOwner},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrAmountMismatch, KindAmountMismatch},
	{ErrCustodyAccount, KindCustodyAccount},
}

// ErrorKind returns the stable name of err's ledger error, "ok" for nil
// and "Internal" for anything else.
func ErrorKind(err error) string {
	if err == nil {
		return KindOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// translate maps storage, custody and reward errors onto ledger errors.
// Errors without a ledger meaning are returned unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInsufficientBalance),
		errors.Is(err, custody.ErrInsufficientBalance):
		return errors.Join(ErrInsufficientBalance, err)
	case errors.Is(err, custody.ErrInsufficientAllowance):
		return errors.Join(ErrInsufficientAllowance, err)
	case errors.Is(err, custody.ErrSelfTransfer):
		return errors.Join(ErrCustodyAccount, err)
	case errors.Is(err, storage.ErrAlreadySettled):
		return errors.Join(ErrTokensWereWithdrawn, err)
	case errors.Is(err, reward.ErrOverflow),
		errors.Is(err, custody.ErrInvalidAmount),
		errors.Is(err, storage.ErrInvalidInput):
		return errors.Join(ErrInvalidAmount, err)
	}
	return err
}
