package receivable

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes the transactional writes owned by the receivable
// ledger. It embeds the credit ledger so payments and debt move together.
// Payments are insert-only.
type TxRepository interface {
	credit.TxRepository
	InsertReceivable(ctx context.Context, account Account) error
	LockReceivable(ctx context.Context, accountID uuid.UUID) (Account, error)
	LockReceivableBySale(ctx context.Context, saleID uuid.UUID) (Account, error)
	SaveReceivable(ctx context.Context, account Account) error
	InsertPayment(ctx context.Context, payment Payment) error
}

// Open creates a PENDING receivable for a credit sale. It does not touch
// the customer's debt.
func Open(ctx context.Context, tx TxRepository, in OpenInput) (Account, error) {
	if in.SaleID == uuid.Nil || in.CustomerID == uuid.Nil {
		return Account{}, fmt.Errorf("%w: sale and customer required", shared.ErrValidation)
	}
	if in.Total.IsNegative() {
		return Account{}, fmt.Errorf("%w: total must not be negative", shared.ErrValidation)
	}
	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	due := in.DueDate
	if due.IsZero() {
		due = at.Add(DefaultTerm)
	}
	acc := Account{
		ID:         uuid.New(),
		SaleID:     in.SaleID,
		CustomerID: in.CustomerID,
		Total:      in.Total,
		Paid:       decimal.Zero,
		Balance:    in.Total,
		Status:     StatusPending,
		DueDate:    due,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := tx.InsertReceivable(ctx, acc); err != nil {
		return Account{}, fmt.Errorf("receivable: insert: %w", err)
	}
	return acc, nil
}

// ApplyPayment records a payment, moves the account forward and lowers the
// customer's debt by the same amount.
func ApplyPayment(ctx context.Context, tx TxRepository, in PaymentInput, at time.Time) (PaymentResult, error) {
	if in.AccountID == uuid.Nil {
		return PaymentResult{}, fmt.Errorf("%w: account required", shared.ErrValidation)
	}
	if in.UserID == uuid.Nil {
		return PaymentResult{}, fmt.Errorf("%w: receiving user required", shared.ErrValidation)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	acc, err := tx.LockReceivable(ctx, in.AccountID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("receivable: lock: %w", err)
	}
	if !in.Amount.IsPositive() || !shared.IsCents(in.Amount) || in.Amount.GreaterThan(acc.Balance) {
		return PaymentResult{}, &InvalidAmountError{AccountID: acc.ID, Amount: in.Amount, Balance: acc.Balance}
	}

	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = DefaultPaymentMethod
	}
	payment := Payment{
		ID:         uuid.New(),
		AccountID:  acc.ID,
		Amount:     in.Amount,
		Method:     strings.ToUpper(method),
		Reference:  strings.TrimSpace(in.Reference),
		Notes:      strings.TrimSpace(in.Notes),
		ReceivedBy: in.UserID,
		CreatedAt:  at,
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return PaymentResult{}, fmt.Errorf("receivable: insert payment: %w", err)
	}

	acc.Paid = acc.Paid.Add(in.Amount)
	acc.Balance = acc.Balance.Sub(in.Amount)
	acc.Status = StatusPartial
	if !acc.Balance.IsPositive() {
		acc.Status = StatusPaid
	}
	acc.UpdatedAt = at
	if err := tx.SaveReceivable(ctx, acc); err != nil {
		return PaymentResult{}, fmt.Errorf("receivable: save: %w", err)
	}
	if _, err := credit.Lower(ctx, tx, acc.CustomerID, in.Amount); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Payment: payment, Account: acc, NewBalance: acc.Balance, NewStatus: acc.Status}, nil
}

// Reverse writes off the receivable of a cancelled sale: balance zero and
// status PAID, with no payment recorded. Debt is left to the caller.
func Reverse(ctx context.Context, tx TxRepository, saleID uuid.UUID, at time.Time) (Account, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	acc, err := tx.LockReceivableBySale(ctx, saleID)
	if err != nil {
		return Account{}, fmt.Errorf("receivable: lock by sale: %w", err)
	}
	acc.Balance = decimal.Zero
	acc.Status = StatusPaid
	acc.UpdatedAt = at
	if err := tx.SaveReceivable(ctx, acc); err != nil {
		return Account{}, fmt.Errorf("receivable: save: %w", err)
	}
	return acc, nil
}

// DaysOverdue counts whole days past due as of asOf, never below zero.
func DaysOverdue(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	return int(asOf.Sub(due) / (24 * time.Hour))
}

var bucketLabels = [...]string{"current", "1-30", "31-60", "61-90", "90+"}

func bucketIndex(days int) int {
	switch {
	case days <= 0:
		return 0
	case days <= 30:
		return 1
	case days <= 60:
		return 2
	case days <= 90:
		return 3
	default:
		return 4
	}
}

// BuildAging buckets unpaid accounts by days overdue as of asOf. Accounts
// come back sorted by days overdue, most overdue first.
func BuildAging(accounts []AccountView, asOf time.Time) AgingReport {
	report := AgingReport{AsOf: asOf, TotalPending: decimal.Zero, Accounts: []AccountView{}}
	report.Buckets = make([]Bucket, len(bucketLabels))
	for i, label := range bucketLabels {
		report.Buckets[i] = Bucket{Label: label, Total: decimal.Zero}
	}
	for _, acc := range accounts {
		if acc.Status != StatusPending && acc.Status != StatusPartial {
			continue
		}
		acc.DaysOverdue = DaysOverdue(acc.DueDate, asOf)
		acc.EffectiveStatus = acc.Account.EffectiveStatus(asOf)
		b := &report.Buckets[bucketIndex(acc.DaysOverdue)]
		b.Count++
		b.Total = b.Total.Add(acc.Balance)
		report.TotalPending = report.TotalPending.Add(acc.Balance)
		report.Accounts = append(report.Accounts, acc)
	}
	sortByOverdue(report.Accounts)
	return report
}

func sortByOverdue(accounts []AccountView) {
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].DaysOverdue != accounts[j].DaysOverdue {
			return accounts[i].DaysOverdue > accounts[j].DaysOverdue
		}
		return accounts[i].DueDate.Before(accounts[j].DueDate)
	})
}
