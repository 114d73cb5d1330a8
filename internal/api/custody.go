package api

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
)

// Development custody endpoints. They let a local setup mint and approve
// test tokens on the custody book the service transfers through.

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.custodyWrite(w, r, s.custody.Mint)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.custodyWrite(w, r, s.custody.Approve)
}

func (s *Server) custodyWrite(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, token, account common.Address, amount *uint256.Int) error) {
	token, err := tokenParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req custodyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := op(r.Context(), token, account, amount); err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	s.writeHoldings(w, r, token, account)
}

func (s *Server) handleCustodyBalance(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeHoldings(w, r, token, account)
}

func (s *Server) writeHoldings(w http.ResponseWriter, r *http.Request, token, account common.Address) {
	balance, allowance, err := s.custody.Holdings(r.Context(), token, account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, custodyBalanceResponse{
		Token:     token.Hex(),
		Account:   account.Hex(),
		Balance:   dec(balance),
		Allowance: dec(allowance),
	})
}
