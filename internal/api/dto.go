package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"staking-ledger/internal/domain"
	"staking-ledger/internal/staking"
)

// Amounts travel as decimal strings so 256-bit values survive JSON clients.

type tokenRequest struct {
	Token string `json:"token"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type depositRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type estimateRequest struct {
	Amount    string `json:"amount"`
	StartDate int64  `json:"start_date"`
	AsOf      int64  `json:"as_of"`
}

type custodyRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	Available bool   `json:"available"`
}

type tokensResponse struct {
	Tokens []string `json:"tokens"`
}

type balanceResponse struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type depositResponse struct {
	ID uint64 `json:"id"`
}

type lastIDResponse struct {
	LastID uint64 `json:"last_id"`
	Exists bool   `json:"exists"`
}

type investigationResponse struct {
	ID        uint64 `json:"id"`
	User      string `json:"user"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	StartDate int64  `json:"start_date"`
	EndDate   *int64 `json:"end_date"`
	Status    string `json:"status"`
}

type rewardResponse struct {
	ID     uint64 `json:"id,omitempty"`
	AsOf   int64  `json:"as_of"`
	Reward string `json:"reward"`
}

type settlementResponse struct {
	Investigation investigationResponse `json:"investigation"`
	Reward        string                `json:"reward"`
	Penalty       string                `json:"penalty"`
	Payout        string                `json:"payout"`
	Balance       string                `json:"balance"`
}

type eventResponse struct {
	EventID         string  `json:"event_id"`
	Kind            string  `json:"kind"`
	Token           string  `json:"token"`
	Account         string  `json:"account"`
	InvestigationID *uint64 `json:"investigation_id,omitempty"`
	Amount          string  `json:"amount"`
	Reward          string  `json:"reward"`
	Balance         string  `json:"balance"`
	OccurredAt      int64   `json:"occurred_at"`
}

type custodyBalanceResponse struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func hexes(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func toInvestigationResponse(inv *domain.Investigation) investigationResponse {
	return investigationResponse{
		ID:        inv.ID,
		User:      inv.User.Hex(),
		Token:     inv.Token.Hex(),
		Amount:    dec(inv.Amount),
		StartDate: inv.StartDate,
		EndDate:   inv.EndDate,
		Status:    inv.Status().String(),
	}
}

func toSettlementResponse(st *staking.Settlement) settlementResponse {
	return settlementResponse{
		Investigation: toInvestigationResponse(st.Investigation),
		Reward:        dec(st.Reward),
		Penalty:       dec(st.Penalty),
		Payout:        dec(st.Payout),
		Balance:       dec(st.Balance),
	}
}

func toEventResponse(e *domain.LedgerEvent) eventResponse {
	return eventResponse{
		EventID:         e.EventID,
		Kind:            e.Kind.String(),
		Token:           e.Token.Hex(),
		Account:         e.Account.Hex(),
		InvestigationID: e.InvestigationID,
		Amount:          dec(e.Amount),
		Reward:          dec(e.Reward),
		Balance:         dec(e.Balance),
		OccurredAt:      e.OccurredAt,
	}
}
