package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/application/command"
	"github.com/music-school/student-fees/internal/application/query"
	"github.com/music-school/student-fees/internal/domain/shared"
	"github.com/music-school/student-fees/pkg/logger"
	"github.com/music-school/student-fees/pkg/timeutil"
	"github.com/music-school/student-fees/pkg/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// Fee routes answer with bare JSON values; only errors use the envelope.
// ══════════════════════════════════════════════════════════════════════════════

type addFeeRequest struct {
	// Amount is kept raw so quoted strings are rejected: it must be a JSON number.
	Amount     json.RawMessage `json:"amount" validate:"required"`
	Expiration string          `json:"expiration" validate:"required,datetime=2006-01-02"`
}

type addFeeResponse struct {
	FeeID string `json:"feeId"`
}

type expiredFeeResponse struct {
	Amount     json.Number `json:"amount"`
	Expiration time.Time   `json:"expiration"`
}

type accessResponse struct {
	CanAccess bool `json:"canAccess"`
}

// ══════════════════════════════════════════════════════════════════════════════
// FEE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAddFee handles POST /student-fees/{studentId}/fees
func (s *Server) handleAddFee(w http.ResponseWriter, r *http.Request) {
	if s.deps.AddFeeHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Add fee handler not configured")
		return
	}

	var req addFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object")
		return
	}

	if err := validation.Struct(req); err != nil {
		writeValidationError(w, r, err)
		return
	}

	amount, err := decimal.NewFromString(string(req.Amount))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "amount must be a number")
		return
	}

	expiration, err := timeutil.ParseDate(req.Expiration)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "expiration must be a YYYY-MM-DD date")
		return
	}

	result, err := s.deps.AddFeeHandler.Handle(r.Context(), command.AddFeeCommand{
		StudentID:     chi.URLParam(r, "studentId"),
		Amount:        amount,
		Expiration:    expiration,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeBody(w, http.StatusOK, addFeeResponse{FeeID: result.FeeID})
}

// handlePayFee handles POST /student-fees/{studentId}/fees/{feeId}/pay
func (s *Server) handlePayFee(w http.ResponseWriter, r *http.Request) {
	if s.deps.PayFeeHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Pay fee handler not configured")
		return
	}

	_, err := s.deps.PayFeeHandler.Handle(r.Context(), command.PayFeeCommand{
		StudentID:     chi.URLParam(r, "studentId"),
		FeeID:         chi.URLParam(r, "feeId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleGetCreditAmount handles GET /student-fees/{studentId}/credit-amount
func (s *Server) handleGetCreditAmount(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetBalanceHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Balance handler not configured")
		return
	}

	result, err := s.deps.GetBalanceHandler.Handle(r.Context(), query.GetBalanceQuery{
		StudentID: chi.URLParam(r, "studentId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeBody(w, http.StatusOK, jsonNumber(result.Balance))
}

// handleGetExpiredFees handles GET /student-fees/{studentId}/fees?expired=true
func (s *Server) handleGetExpiredFees(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetExpiredFeesHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Expired fees handler not configured")
		return
	}

	// Only the expired listing exists, so the filter is mandatory.
	expired, err := strconv.ParseBool(r.URL.Query().Get("expired"))
	if err != nil || !expired {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation_failed", "Invalid query",
			[]validation.FieldError{{Field: "expired", Rule: "eq", Param: "true"}})
		return
	}

	result, err := s.deps.GetExpiredFeesHandler.Handle(r.Context(), query.GetExpiredFeesQuery{
		StudentID: chi.URLParam(r, "studentId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	body := make([]expiredFeeResponse, 0, len(result.Fees))
	for _, fee := range result.Fees {
		body = append(body, expiredFeeResponse{
			Amount:     jsonNumber(fee.Amount),
			Expiration: fee.Expiration,
		})
	}

	writeBody(w, http.StatusOK, body)
}

// handleGetAccess handles GET /student-fees/{studentId}/access
func (s *Server) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAccessHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Access handler not configured")
		return
	}

	result, err := s.deps.GetAccessHandler.Handle(r.Context(), query.GetAccessQuery{
		StudentID: chi.URLParam(r, "studentId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeBody(w, http.StatusOK, accessResponse{CanAccess: result.CanAccess})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps application errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation_failed", "Invalid request", verr.Fields)
	case errors.Is(err, shared.ErrInvalidAmount):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_amount", "Amount must not be negative")
	case errors.Is(err, shared.ErrAmountOutOfRange):
		writeJSONError(w, r, http.StatusBadRequest, "amount_out_of_range", publicMessage(err))
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", publicMessage(err))
	case errors.Is(err, shared.ErrAccountNotFound):
		writeJSONError(w, r, http.StatusNotFound, "account_not_found", "Student has no fee account")
	case errors.Is(err, shared.ErrFeeNotFound):
		writeJSONError(w, r, http.StatusNotFound, "fee_not_found", "Fee not found")
	case errors.Is(err, shared.ErrFeeAlreadyPaid):
		writeJSONError(w, r, http.StatusConflict, "fee_already_paid", "Fee is already paid")
	case shared.IsRetryable(err):
		logger.FromContext(r.Context()).Warn("fee store unavailable", logger.Err(err))
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, r, http.StatusServiceUnavailable, "store_unavailable", "Fee store is temporarily unavailable")
	default:
		logger.FromContext(r.Context()).Error("fee request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "validation_failed", "Invalid request", verr.Fields)
		return
	}
	writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
}

// publicMessage returns the DomainError message when there is one.
func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "Invalid request"
}

// jsonNumber renders a decimal as a bare JSON number without float rounding.
func jsonNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
