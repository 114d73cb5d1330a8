package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// InvestigationStatus is the settlement state of a stake record.
type InvestigationStatus string

const (
	StatusOpen    InvestigationStatus = "OPEN"
	StatusSettled InvestigationStatus = "SETTLED"
)

// String returns the string representation of InvestigationStatus.
func (s InvestigationStatus) String() string {
	return string(s)
}

// Investigation is one user's stake of a registered token.
// Corresponds to investigations table in PostgreSQL.
type Investigation struct {
	ID        uint64         // sequential, starts at 1
	User      common.Address // owner of the stake
	Token     common.Address // registered token at deposit time
	Amount    *uint256.Int   // principal in smallest token units
	StartDate int64          // Unix timestamp in seconds
	EndDate   *int64         // settlement timestamp (seconds), nil while open
}

// Status reports whether the investigation is still open.
func (i *Investigation) Status() InvestigationStatus {
	if i.EndDate == nil {
		return StatusOpen
	}
	return StatusSettled
}

// IsSettled reports whether the investigation has been withdrawn or refunded.
func (i *Investigation) IsSettled() bool {
	return i.EndDate != nil
}

// Clone returns a deep copy so callers never share amount or end date pointers.
func (i *Investigation) Clone() *Investigation {
	c := *i
	if i.Amount != nil {
		c.Amount = i.Amount.Clone()
	}
	if i.EndDate != nil {
		end := *i.EndDate
		c.EndDate = &end
	}
	return &c
}
