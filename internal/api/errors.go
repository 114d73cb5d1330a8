package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"staking-ledger/internal/staking"
)

// KindBadRequest reports malformed input rejected before reaching the ledger.
const KindBadRequest = "BadRequest"

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps a ledger error kind onto an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case KindBadRequest, staking.KindAddressIsEmpty, staking.KindInvalidAmount, staking.KindAmountMismatch,
		staking.KindCustodyAccount:
		return http.StatusBadRequest
	case staking.KindNotOwner, staking.KindNotAllowedToWithdraw:
		return http.StatusForbidden
	case staking.KindNoSuchInvestigation:
		return http.StatusNotFound
	case staking.KindTokensWereWithdrawn:
		return http.StatusConflict
	case staking.KindTokenNotAvailable, staking.KindInsufficientBalance, staking.KindInsufficientAllowance:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := staking.ErrorKind(err)
	if errors.Is(err, errBadRequest) {
		kind = KindBadRequest
	}
	status := statusFor(kind)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
