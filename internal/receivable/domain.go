package receivable

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status enumerates receivable statuses.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
	// StatusOverdue is derived on read and never stored.
	StatusOverdue Status = "OVERDUE"
)

// DefaultPaymentMethod applies when a payment names no method.
const DefaultPaymentMethod = "CASH"

// DefaultTerm is the credit term for new receivables.
const DefaultTerm = 30 * 24 * time.Hour

// Account is one accounts_receivable row, opened by exactly one credit sale.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	SaleID     uuid.UUID       `json:"sale_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total_amount"`
	Paid       decimal.Decimal `json:"paid_amount"`
	Balance    decimal.Decimal `json:"balance"`
	Status     Status          `json:"status"`
	DueDate    time.Time       `json:"due_date"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// EffectiveStatus reports OVERDUE for unpaid accounts past their due date.
func (a Account) EffectiveStatus(now time.Time) Status {
	if a.Status != StatusPaid && a.Balance.IsPositive() && now.After(a.DueDate) {
		return StatusOverdue
	}
	return a.Status
}

// Payment is an immutable collection against an account.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ReceivedBy uuid.UUID       `json:"received_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OpenInput opens the receivable of a credit sale.
type OpenInput struct {
	SaleID     uuid.UUID
	CustomerID uuid.UUID
	Total      decimal.Decimal
	DueDate    time.Time
	At         time.Time
}

// PaymentInput registers a payment.
type PaymentInput struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Method    string
	Reference string
	Notes     string
	UserID    uuid.UUID
}

// PaymentResult reports the payment and the account after it.
type PaymentResult struct {
	Payment    Payment         `json:"payment"`
	Account    Account         `json:"-"`
	NewBalance decimal.Decimal `json:"new_balance"`
	NewStatus  Status          `json:"new_status"`
}

// AccountView decorates an account with names for listings.
type AccountView struct {
	Account
	CustomerName    string `json:"customer_name"`
	SaleNumber      string `json:"sale_number"`
	EffectiveStatus Status `json:"effective_status"`
	DaysOverdue     int    `json:"days_overdue"`
}

// AccountDetail is an account with its payments, newest first.
type AccountDetail struct {
	AccountView
	Payments []Payment `json:"payments"`
}

// ListFilter scopes receivable listings.
type ListFilter struct {
	Status     Status
	CustomerID *uuid.UUID
	Page       int
	PerPage    int
}

// AccountPage is one page of receivables.
type AccountPage struct {
	Items      []AccountView     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Bucket aggregates receivables by days overdue.
type Bucket struct {
	Label string          `json:"label"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// AgingReport buckets unpaid receivables as of a date.
type AgingReport struct {
	AsOf         time.Time       `json:"as_of"`
	Buckets      []Bucket        `json:"buckets"`
	TotalPending decimal.Decimal `json:"total_pending"`
	Accounts     []AccountView   `json:"accounts"`
}

// Statement is a customer's credit position with its receivables.
type Statement struct {
	Credit       credit.Snapshot `json:"credit"`
	Accounts     []AccountView   `json:"accounts"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// InvalidAmountError reports a payment that is not positive, carries sub-cent
// precision or exceeds the balance.
type InvalidAmountError struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	if !e.Amount.IsPositive() {
		return fmt.Sprintf("receivable: payment amount must be positive, outstanding balance %s", e.Balance.StringFixed(2))
	}
	if !shared.IsCents(e.Amount) {
		return fmt.Sprintf("receivable: payment %s has more than %d decimals", e.Amount.String(), shared.MoneyScale)
	}
	return fmt.Sprintf("receivable: payment %s exceeds outstanding balance %s", e.Amount.StringFixed(2), e.Balance.StringFixed(2))
}

// Unwrap exposes the sentinel for errors.Is.
func (e *InvalidAmountError) Unwrap() error {
	return shared.ErrInvalidPaymentAmount
}

// ProblemFields exposes correction context to API callers.
func (e *InvalidAmountError) ProblemFields() map[string]any {
	return map[string]any{
		"account_id": e.AccountID,
		"amount":     e.Amount.String(),
		"balance":    e.Balance.StringFixed(2),
	}
}

