package credit

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Customer is the credit-relevant slice of a customer row.
type Customer struct {
	ID          uuid.UUID
	Name        string
	CreditLimit decimal.Decimal
	CurrentDebt decimal.Decimal
	Active      bool
}

// Snapshot reports a customer's credit position.
type Snapshot struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Name       string          `json:"name"`
	Limit      decimal.Decimal `json:"credit_limit"`
	Debt       decimal.Decimal `json:"current_debt"`
	Available  decimal.Decimal `json:"available_credit"`
	Active     bool            `json:"active"`
}

// SnapshotOf derives the available credit for c.
func SnapshotOf(c Customer) Snapshot {
	return Snapshot{
		CustomerID: c.ID,
		Name:       c.Name,
		Limit:      c.CreditLimit,
		Debt:       c.CurrentDebt,
		Available:  c.CreditLimit.Sub(c.CurrentDebt),
		Active:     c.Active,
	}
}

// ExceededError reports a credit request above the available credit.
type ExceededError struct {
	CustomerID uuid.UUID
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("credit: limit exceeded for customer %s: available %s, requested %s",
		e.CustomerID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ExceededError) Unwrap() error {
	return shared.ErrCreditExceeded
}

// ProblemFields exposes correction context to API callers.
func (e *ExceededError) ProblemFields() map[string]any {
	return map[string]any{
		"customer_id": e.CustomerID,
		"available":   e.Available.StringFixed(2),
		"requested":   e.Requested.StringFixed(2),
	}
}
