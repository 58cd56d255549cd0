package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Detailer is implemented by domain errors that expose correction context
// (available stock, available credit, outstanding balance) to the caller.
type Detailer interface {
	ProblemFields() map[string]any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	p := ProblemFor(err)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		w.Header().Set("Retry-After", "1")
	}
	WriteProblem(w, p)
}

// ProblemFor builds the problem document for err without writing it.
func ProblemFor(err error) ProblemDetail {
	var p ProblemDetail
	switch {
	case errors.Is(err, shared.ErrValidation):
		p = ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Type: "validation"}
	case errors.Is(err, shared.ErrUnauthenticated):
		p = ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Type: "unauthenticated"}
	case errors.Is(err, shared.ErrNotFound):
		p = ProblemDetail{Status: http.StatusNotFound, Title: "Not Found", Type: "not-found"}
	case errors.Is(err, shared.ErrInsufficientStock):
		p = ProblemDetail{Status: http.StatusUnprocessableEntity, Title: "Insufficient Stock", Type: "insufficient-stock"}
	case errors.Is(err, shared.ErrCreditExceeded):
		p = ProblemDetail{Status: http.StatusUnprocessableEntity, Title: "Credit Exceeded", Type: "credit-exceeded"}
	case errors.Is(err, shared.ErrInvalidPaymentAmount):
		p = ProblemDetail{Status: http.StatusUnprocessableEntity, Title: "Invalid Payment Amount", Type: "invalid-payment-amount"}
	case errors.Is(err, shared.ErrAlreadyCancelled):
		p = ProblemDetail{Status: http.StatusConflict, Title: "Already Cancelled", Type: "already-cancelled"}
	case errors.Is(err, shared.ErrIdempotencyConflict):
		p = ProblemDetail{Status: http.StatusConflict, Title: "Duplicate Request", Type: "idempotency-conflict"}
	case errors.Is(err, shared.ErrConcurrencyConflict):
		p = ProblemDetail{Status: http.StatusServiceUnavailable, Title: "Concurrency Conflict", Type: "concurrency-conflict"}
	default:
		return ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error"}
	}
	p.Detail = err.Error()
	if p.Status == http.StatusServiceUnavailable {
		p.Detail = shared.ErrConcurrencyConflict.Error()
	}
	var d Detailer
	if errors.As(err, &d) {
		p.Extensions = d.ProblemFields()
	}
	return p
}
