package receivable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const selectAccountView = `SELECT ar.id, ar.sale_id, ar.customer_id, ar.total_amount, ar.paid_amount, ar.balance, ar.status,
       ar.due_date, ar.created_at, ar.updated_at, c.name, s.sale_number
FROM accounts_receivable ar
JOIN customers c ON c.id = ar.customer_id
JOIN sales s ON s.id = ar.sale_id`

const selectAccount = `SELECT id, sale_id, customer_id, total_amount, paid_amount, balance, status, due_date, created_at, updated_at
FROM accounts_receivable`

// Repository persists receivables in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.TxRunner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// WithTx executes fn inside a retried repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.Run(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// ListOpen returns every PENDING or PARTIAL account.
func (r *Repository) ListOpen(ctx context.Context) ([]AccountView, error) {
	return r.queryViews(ctx, selectAccountView+` WHERE ar.status IN ('PENDING','PARTIAL') ORDER BY ar.due_date`)
}

// ListOverdue returns unpaid accounts whose due date lies in (dueAfter, dueBefore].
func (r *Repository) ListOverdue(ctx context.Context, dueAfter, dueBefore time.Time) ([]AccountView, error) {
	return r.queryViews(ctx, selectAccountView+` WHERE ar.status IN ('PENDING','PARTIAL') AND ar.balance > 0
  AND ar.due_date > $1 AND ar.due_date <= $2 ORDER BY ar.due_date`, dueAfter, dueBefore)
}

// ListByCustomer returns a customer's accounts, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]AccountView, error) {
	return r.queryViews(ctx, selectAccountView+` WHERE ar.customer_id = $1 ORDER BY ar.created_at DESC`, customerID)
}

// List returns one page of accounts and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter, now time.Time) ([]AccountView, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	switch filter.Status {
	case "":
	case StatusOverdue:
		add("ar.status IN ('PENDING','PARTIAL') AND ar.due_date < $%d", now)
	default:
		add("ar.status = $%d", string(filter.Status))
	}
	if filter.CustomerID != nil {
		add("ar.customer_id = $%d", *filter.CustomerID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts_receivable ar`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := selectAccountView + clause + fmt.Sprintf(" ORDER BY ar.created_at DESC, ar.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	items, err := r.queryViews(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get loads one account with customer and sale names.
func (r *Repository) Get(ctx context.Context, accountID uuid.UUID) (AccountView, error) {
	items, err := r.queryViews(ctx, selectAccountView+` WHERE ar.id = $1`, accountID)
	if err != nil {
		return AccountView{}, err
	}
	if len(items) == 0 {
		return AccountView{}, fmt.Errorf("receivable %s: %w", accountID, shared.ErrNotFound)
	}
	return items[0], nil
}

// ListPayments returns an account's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, accountID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, account_receivable_id, amount, method, COALESCE(reference, ''), COALESCE(notes, ''), received_by, created_at
FROM payments WHERE account_receivable_id = $1 ORDER BY created_at DESC, id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Method, &p.Reference, &p.Notes, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) queryViews(ctx context.Context, query string, args ...any) ([]AccountView, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountView
	for rows.Next() {
		var v AccountView
		if err := rows.Scan(&v.ID, &v.SaleID, &v.CustomerID, &v.Total, &v.Paid, &v.Balance, &v.Status,
			&v.DueDate, &v.CreatedAt, &v.UpdatedAt, &v.CustomerName, &v.SaleNumber); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type txRepository struct {
	credit.TxRepository
	tx pgx.Tx
}

// NewTxRepository binds receivable and credit writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: credit.NewTxRepository(tx), tx: tx}
}

func (r *txRepository) InsertReceivable(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts_receivable (id, sale_id, customer_id, total_amount, paid_amount, balance, status, due_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.SaleID, a.CustomerID, a.Total, a.Paid, a.Balance, string(a.Status), a.DueDate, a.CreatedAt, a.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("sale %s or customer %s: %w", a.SaleID, a.CustomerID, shared.ErrNotFound)
	}
	return err
}

func (r *txRepository) LockReceivable(ctx context.Context, accountID uuid.UUID) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, selectAccount+` WHERE id = $1 FOR UPDATE`, accountID), "receivable", accountID)
}

func (r *txRepository) LockReceivableBySale(ctx context.Context, saleID uuid.UUID) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, selectAccount+` WHERE sale_id = $1 FOR UPDATE`, saleID), "receivable for sale", saleID)
}

func (r *txRepository) SaveReceivable(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts_receivable SET paid_amount=$2, balance=$3, status=$4, updated_at=$5 WHERE id=$1`,
		a.ID, a.Paid, a.Balance, string(a.Status), a.UpdatedAt)
	return err
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (id, account_receivable_id, amount, method, reference, notes, received_by, created_at)
VALUES ($1,$2,$3,$4,NULLIF($5, ''),NULLIF($6, ''),$7,$8)`,
		p.ID, p.AccountID, p.Amount, p.Method, p.Reference, p.Notes, p.ReceivedBy, p.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("receiving user %s: %w", p.ReceivedBy, shared.ErrNotFound)
	}
	return err
}

func scanAccount(row pgx.Row, what string, id uuid.UUID) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.SaleID, &a.CustomerID, &a.Total, &a.Paid, &a.Balance, &a.Status, &a.DueDate, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%s %s: %w", what, id, shared.ErrNotFound)
	}
	return a, err
}
