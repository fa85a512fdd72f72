package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code  uint32 `json:"code"` // Ledger error code, 0 for transport errors
	Name  string `json:"name"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code uint32, name, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Name: name, Error: msg})
}

// writeLedgerError maps an engine error to a response.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := ledger.AsError(err)
	if !ok {
		if errors.Is(err, model.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, 0, "InvalidRequest", err.Error())
			return
		}
		s.logger.Error("ledger operation failed",
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, 0, "Internal", "internal error")
		return
	}
	writeError(w, StatusFor(e), e.Code, e.Name, err.Error())
}

// StatusFor returns the HTTP status for a ledger error.
func StatusFor(e *ledger.Error) int {
	switch e {
	case ledger.ErrAccountNotInitialized:
		return http.StatusNotFound
	case ledger.ErrAccountAlreadyInitialized, ledger.ErrCapacityExceeded,
		ledger.ErrInvalidSchemeStatus, ledger.ErrInvalidInvestorStatus:
		return http.StatusConflict
	}
	switch e.Category {
	case ledger.CategoryAuthorization:
		return http.StatusForbidden
	case ledger.CategoryValidation, ledger.CategoryArithmetic, ledger.CategoryFunds:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
