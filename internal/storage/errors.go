package storage

import "errors"

// Storage errors for ledger and append-only stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance is returned when a debit exceeds the token balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrAlreadySettled is returned when settling an investigation twice.
	ErrAlreadySettled = errors.New("investigation already settled")

	// ErrReadOnly is returned when a write is attempted inside Ledger.View.
	ErrReadOnly = errors.New("read-only ledger transaction")
)
