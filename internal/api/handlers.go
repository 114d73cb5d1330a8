package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
)

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	actingAs, err := accountFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.svc.AddToken(r.Context(), actingAs, token); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Hex(), Available: true})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.svc.ListTokens(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokensResponse{Tokens: hexes(tokens)})
}

func (s *Server) handleIsAvailable(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.svc.IsAvailable(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Hex(), Available: ok})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.svc.GetBalance(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Token: token.Hex(), Balance: dec(bal)})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	actingAs, token, amount, err := poolRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.svc.FundRewardPool(r.Context(), actingAs, token, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Token: token.Hex(), Balance: dec(bal)})
}

func (s *Server) handleOwnerWithdraw(w http.ResponseWriter, r *http.Request) {
	actingAs, token, amount, err := poolRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.svc.OwnerWithdraw(r.Context(), actingAs, token, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Token: token.Hex(), Balance: dec(bal)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	actingAs, err := accountFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.svc.Deposit(r.Context(), actingAs, token, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, depositResponse{ID: id})
}

func (s *Server) handleLastID(w http.ResponseWriter, r *http.Request) {
	id, ok, err := s.svc.GetLastID(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lastIDResponse{LastID: id, Exists: ok})
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := s.svc.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvestigationResponse(inv))
}

func (s *Server) handleEstimateReward(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asOf := s.svc.Now()
	if at := r.URL.Query().Get("at"); at != "" {
		if asOf, err = strconv.ParseInt(at, 10, 64); err != nil {
			s.writeError(w, r, badRequest("at: %v", err))
			return
		}
	}

	rwd, err := s.svc.EstimateReward(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardResponse{ID: id, AsOf: asOf, Reward: dec(rwd)})
}

func (s *Server) handleComputeReward(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rwd, err := s.svc.ComputeReward(amount, req.StartDate, req.AsOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardResponse{AsOf: req.AsOf, Reward: dec(rwd)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	actingAs, err := accountFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.svc.Withdraw(r.Context(), actingAs, id, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(st))
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	actingAs, err := accountFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.svc.Refund(r.Context(), actingAs, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(st))
}

func (s *Server) handleListByUser(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("user", chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	invs, err := s.svc.ListByUser(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]investigationResponse, len(invs))
	for i, inv := range invs {
		out[i] = toInvestigationResponse(inv)
	}
	writeJSON(w, http.StatusOK, out)
}

// accountFrom parses the acting account header. A missing header yields the
// zero address, which every mutating operation rejects.
func accountFrom(r *http.Request) (common.Address, error) {
	v := r.Header.Get(AccountHeader)
	if v == "" {
		return common.Address{}, nil
	}
	return parseAddress(AccountHeader, v)
}

func poolRequest(r *http.Request) (actingAs, token common.Address, amount *uint256.Int, err error) {
	if actingAs, err = accountFrom(r); err != nil {
		return
	}
	if token, err = tokenParam(r); err != nil {
		return
	}
	var req amountRequest
	if err = decodeBody(r, &req); err != nil {
		return
	}
	amount, err = parseAmount(req.Amount)
	return
}

func tokenParam(r *http.Request) (common.Address, error) {
	return parseAddress("token", chi.URLParam(r, "token"))
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, badRequest("id: %v", err)
	}
	return id, nil
}

func parseAddress(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, badRequest("%s: %q is not a hex address", field, v)
	}
	return common.HexToAddress(v), nil
}

func parseAmount(v string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, badRequest("amount: %q: %v", v, err)
	}
	return amount, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
