package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"

	"staking-ledger/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(kind|token|account|investigation_id|amount|reward|balance|occurred_at|seq)
// Returns the base58-encoded hash (43 or 44 characters).
//
// investigation_id is empty when nil; nil amounts hash as "0".
// seq disambiguates otherwise identical events recorded in the same millisecond.
func ComputeEventID(e *domain.LedgerEvent, seq uint64) string {
	invStr := ""
	if e.InvestigationID != nil {
		invStr = fmt.Sprintf("%d", *e.InvestigationID)
	}

	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d|%d",
		string(e.Kind),
		e.Token.Hex(),
		e.Account.Hex(),
		invStr,
		decimal(e.Amount),
		decimal(e.Reward),
		decimal(e.Balance),
		e.OccurredAt,
		seq,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
