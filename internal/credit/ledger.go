package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes the transactional access owned by the credit ledger.
type TxRepository interface {
	// LockCustomerCredit reads the customer row and holds its lock until the
	// transaction ends, serialising every debt change for that customer.
	LockCustomerCredit(ctx context.Context, customerID uuid.UUID) (Customer, error)
	SaveCustomerDebt(ctx context.Context, customerID uuid.UUID, debt decimal.Decimal) error
}

// Check locks the customer and reports its credit position.
func Check(ctx context.Context, tx TxRepository, customerID uuid.UUID) (Snapshot, error) {
	if customerID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	c, err := tx.LockCustomerCredit(ctx, customerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("credit: lock customer: %w", err)
	}
	return SnapshotOf(c), nil
}

// Authorize locks the customer and fails when amount exceeds the available
// credit. The lock is still held when the caller raises the debt.
func Authorize(ctx context.Context, tx TxRepository, customerID uuid.UUID, amount decimal.Decimal) (Snapshot, error) {
	snap, err := Check(ctx, tx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	if !snap.Active {
		return Snapshot{}, fmt.Errorf("%w: customer %s is inactive", shared.ErrValidation, customerID)
	}
	if amount.GreaterThan(snap.Available) {
		return Snapshot{}, &ExceededError{CustomerID: customerID, Available: snap.Available, Requested: amount}
	}
	return snap, nil
}

// Raise adds amount to the customer's debt. It does not enforce the limit;
// callers authorise first.
func Raise(ctx context.Context, tx TxRepository, customerID uuid.UUID, amount decimal.Decimal) (Snapshot, error) {
	return mutate(ctx, tx, customerID, amount, func(debt decimal.Decimal) decimal.Decimal {
		return debt.Add(amount)
	})
}

// Lower subtracts amount from the customer's debt, never going below zero.
func Lower(ctx context.Context, tx TxRepository, customerID uuid.UUID, amount decimal.Decimal) (Snapshot, error) {
	return mutate(ctx, tx, customerID, amount, func(debt decimal.Decimal) decimal.Decimal {
		next := debt.Sub(amount)
		if next.IsNegative() {
			return decimal.Zero
		}
		return next
	})
}

func mutate(ctx context.Context, tx TxRepository, customerID uuid.UUID, amount decimal.Decimal, apply func(decimal.Decimal) decimal.Decimal) (Snapshot, error) {
	if amount.IsNegative() {
		return Snapshot{}, fmt.Errorf("%w: amount must not be negative", shared.ErrValidation)
	}
	if customerID == uuid.Nil {
		return Snapshot{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	c, err := tx.LockCustomerCredit(ctx, customerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("credit: lock customer: %w", err)
	}
	c.CurrentDebt = apply(c.CurrentDebt)
	if err := tx.SaveCustomerDebt(ctx, customerID, c.CurrentDebt); err != nil {
		return Snapshot{}, fmt.Errorf("credit: save debt: %w", err)
	}
	return SnapshotOf(c), nil
}
