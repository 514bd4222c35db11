package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bankledger/pkg/ledger"
	"bankledger/pkg/money"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TransferRequest is the body of POST /transfers. Amount is a decimal
// string such as "12.34"; sub-cent precision is rejected.
type TransferRequest struct {
	FromIBAN string       `json:"from_iban"`
	ToIBAN   string       `json:"to_iban"`
	Amount   money.Amount `json:"amount"`
}

// OpenAccountRequest is the body of POST /accounts.
type OpenAccountRequest struct {
	CustomerName     string       `json:"customer_name"`
	ExistingCustomer bool         `json:"existing_customer"`
	OpeningBalance   money.Amount `json:"opening_balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	result, err := s.service.Transfer(r.Context(), req.FromIBAN, req.ToIBAN, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	details, err := s.service.OpenAccount(r.Context(), ledger.OpenAccountParams{
		CustomerName:     req.CustomerName,
		ExistingCustomer: req.ExistingCustomer,
		OpeningBalance:   req.OpeningBalance,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, details)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	details, err := s.service.AccountDetails(r.Context(), number)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	entries, err := s.service.History(r.Context(), number)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_number": number,
		"transactions":   entries,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// statusFor maps domain errors to HTTP status codes. Rejected requests are
// client errors; an aborted transfer or unavailable store is reported as
// service unavailability because retrying later can succeed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCustomerName),
		errors.Is(err, ledger.ErrBelowMinimumDeposit),
		errors.Is(err, ledger.ErrSameAccountTransfer):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrTransferAborted),
		errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: ledger.ClassifyError(err)})
}

// writeDecodeError distinguishes a malformed amount from a malformed body.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, money.ErrPrecision) || errors.Is(err, money.ErrRange) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_amount"})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
