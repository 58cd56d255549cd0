package shared

import "errors"

var (
	// ErrNotFound indicates a referenced sale, account, customer, warehouse or product does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a decrement would leave a stock level below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCreditExceeded indicates a credit sale total above the customer's available credit.
	ErrCreditExceeded = errors.New("credit limit exceeded")
	// ErrInvalidPaymentAmount indicates a payment <= 0 or above the outstanding balance.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
	// ErrAlreadyCancelled indicates a cancellation request on a cancelled sale.
	ErrAlreadyCancelled = errors.New("sale already cancelled")
	// ErrConcurrencyConflict indicates the transaction kept losing to concurrent writers.
	ErrConcurrencyConflict = errors.New("concurrency conflict, retry later")
	// ErrUnauthenticated indicates the acting user is missing from the request.
	ErrUnauthenticated = errors.New("acting user required")
)
