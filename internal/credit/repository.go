package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const selectCustomerCredit = `SELECT id, name, credit_limit, current_debt, active FROM customers WHERE id = $1`

// Repository reads customer credit from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCustomerCredit loads a customer without locking it.
func (r *Repository) GetCustomerCredit(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, selectCustomerCredit, customerID), customerID)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds credit writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockCustomerCredit(ctx context.Context, customerID uuid.UUID) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, selectCustomerCredit+" FOR UPDATE", customerID), customerID)
}

func (r *txRepository) SaveCustomerDebt(ctx context.Context, customerID uuid.UUID, debt decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE customers SET current_debt = $2, updated_at = NOW() WHERE id = $1`, customerID, debt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", customerID, shared.ErrNotFound)
	}
	return nil
}

func scanCustomer(row pgx.Row, customerID uuid.UUID) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.CreditLimit, &c.CurrentDebt, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer %s: %w", customerID, shared.ErrNotFound)
	}
	return c, err
}
