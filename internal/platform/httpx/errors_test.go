package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type shortageError struct {
	available int
}

func (e shortageError) Error() string { return fmt.Sprintf("only %d left", e.available) }

func (e shortageError) Unwrap() error { return shared.ErrInsufficientStock }

func (e shortageError) ProblemFields() map[string]any {
	return map[string]any{"available": e.available}
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: customer required", shared.ErrValidation), http.StatusBadRequest},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("sale: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrCreditExceeded, http.StatusUnprocessableEntity},
		{shared.ErrInvalidPaymentAmount, http.StatusUnprocessableEntity},
		{shared.ErrAlreadyCancelled, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{errors.New("pg: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorExposesDetailerFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("line 1: %w", shortageError{available: 2}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Insufficient Stock", body["title"])
	assert.EqualValues(t, 2, body["available"])
	assert.Equal(t, "line 1: only 2 left", body["detail"])
}

func TestInternalErrorsHideDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("relation sales does not exist"))
	assert.NotContains(t, rec.Body.String(), "relation")

	rec = httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("%w: 3 attempts: deadlock", shared.ErrConcurrencyConflict))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "deadlock")
}
