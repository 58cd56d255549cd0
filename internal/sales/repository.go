package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/salenumber"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
)

const selectSale = `SELECT s.id, s.sale_number, s.customer_id, s.user_id, s.warehouse_id, s.payment_type, s.status,
       s.subtotal, s.discount, s.total, COALESCE(s.notes, ''), s.created_at, s.updated_at,
       COALESCE(c.name, ''), u.name
FROM sales s
LEFT JOIN customers c ON c.id = s.customer_id
JOIN users u ON u.id = s.user_id`

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.TxRunner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// WithTx runs fn in one retried repeatable-read transaction spanning every
// ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.Run(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// Get loads a sale with its items.
func (r *Repository) Get(ctx context.Context, saleID uuid.UUID) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, selectSale+` WHERE s.id = $1`, saleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("sale %s: %w", saleID, shared.ErrNotFound)
	}
	if err != nil {
		return Sale{}, err
	}
	sale.Items, err = loadItems(ctx, r.pool, saleID)
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// List returns one page of sale headers and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.PaymentType != "" {
		add("s.payment_type = $%d", string(filter.PaymentType))
	}
	if filter.Status != "" {
		add("s.status = $%d", string(filter.Status))
	}
	if filter.UserID != nil {
		add("s.user_id = $%d", *filter.UserID)
	}
	if filter.CustomerID != nil {
		add("s.customer_id = $%d", *filter.CustomerID)
	}
	if filter.From != nil {
		add("s.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("s.created_at < $%d", *filter.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales s`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := selectSale + clause + fmt.Sprintf(" ORDER BY s.created_at DESC, s.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
	}
	return out, total, rows.Err()
}

// Totals aggregates COMPLETED sales created in [from, to).
func (r *Repository) Totals(ctx context.Context, from, to time.Time, userID *uuid.UUID) (Totals, error) {
	t := Totals{}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
       COALESCE(SUM(total), 0),
       COALESCE(SUM(total) FILTER (WHERE payment_type = 'CASH'), 0),
       COALESCE(SUM(total) FILTER (WHERE payment_type = 'CREDIT'), 0)
FROM sales
WHERE status = 'COMPLETED' AND created_at >= $1 AND created_at < $2
  AND ($3::uuid IS NULL OR user_id = $3)`, from, to, userID).
		Scan(&t.Count, &t.Total, &t.CashTotal, &t.CreditTotal)
	return t, err
}

// TopProducts ranks a seller's products by revenue in [from, to).
func (r *Repository) TopProducts(ctx context.Context, userID uuid.UUID, from, to time.Time, limit int) ([]ProductSales, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku, SUM(si.quantity), SUM(si.subtotal) AS revenue
FROM sale_items si
JOIN sales s ON s.id = si.sale_id
JOIN products p ON p.id = si.product_id
WHERE s.status = 'COMPLETED' AND s.user_id = $1 AND s.created_at >= $2 AND s.created_at < $3
GROUP BY p.id, p.name, p.sku
ORDER BY revenue DESC, p.name
LIMIT $4`, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductSales
	for rows.Next() {
		var ps ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.SKU, &ps.Quantity, &ps.Revenue); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, saleID uuid.UUID) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price, si.subtotal, p.name, p.sku
FROM sale_items si
JOIN products p ON p.id = si.product_id
WHERE si.sale_id = $1
ORDER BY si.position`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.ProductName, &it.SKU); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.Number, &s.CustomerID, &s.UserID, &s.WarehouseID, &s.PaymentType, &s.Status,
		&s.Subtotal, &s.Discount, &s.Total, &s.Notes, &s.CreatedAt, &s.UpdatedAt, &s.CustomerName, &s.UserName)
	return s, err
}

// txRepository routes each ledger's writes to the same pgx.Tx.
type txRepository struct {
	stock      stock.TxRepository
	receivable receivable.TxRepository
	counter    salenumber.TxRepository
	tx         pgx.Tx
}

// NewTxRepository binds every ledger a sale touches to one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		stock:      stock.NewTxRepository(tx),
		receivable: receivable.NewTxRepository(tx),
		counter:    salenumber.NewTxRepository(tx),
		tx:         tx,
	}
}

func (r *txRepository) LockStockLevel(ctx context.Context, warehouseID, productID uuid.UUID) (stock.Level, error) {
	return r.stock.LockStockLevel(ctx, warehouseID, productID)
}

func (r *txRepository) SaveStockLevel(ctx context.Context, level stock.Level) error {
	return r.stock.SaveStockLevel(ctx, level)
}

func (r *txRepository) AppendMovement(ctx context.Context, mv stock.Movement) error {
	return r.stock.AppendMovement(ctx, mv)
}

func (r *txRepository) LockCustomerCredit(ctx context.Context, customerID uuid.UUID) (credit.Customer, error) {
	return r.receivable.LockCustomerCredit(ctx, customerID)
}

func (r *txRepository) SaveCustomerDebt(ctx context.Context, customerID uuid.UUID, debt decimal.Decimal) error {
	return r.receivable.SaveCustomerDebt(ctx, customerID, debt)
}

func (r *txRepository) InsertReceivable(ctx context.Context, account receivable.Account) error {
	return r.receivable.InsertReceivable(ctx, account)
}

func (r *txRepository) LockReceivable(ctx context.Context, accountID uuid.UUID) (receivable.Account, error) {
	return r.receivable.LockReceivable(ctx, accountID)
}

func (r *txRepository) LockReceivableBySale(ctx context.Context, saleID uuid.UUID) (receivable.Account, error) {
	return r.receivable.LockReceivableBySale(ctx, saleID)
}

func (r *txRepository) SaveReceivable(ctx context.Context, account receivable.Account) error {
	return r.receivable.SaveReceivable(ctx, account)
}

func (r *txRepository) InsertPayment(ctx context.Context, payment receivable.Payment) error {
	return r.receivable.InsertPayment(ctx, payment)
}

func (r *txRepository) NextSaleSequence(ctx context.Context, day time.Time) (int, error) {
	return r.counter.NextSaleSequence(ctx, day)
}

func (r *txRepository) GetProduct(ctx context.Context, productID uuid.UUID) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, name, sku, min_stock, active FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.MinStock, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %s: %w", productID, shared.ErrNotFound)
	}
	return p, err
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sales (id, sale_number, customer_id, user_id, warehouse_id, payment_type, status, subtotal, discount, total, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''),$12,$13)`,
		s.ID, s.Number, s.CustomerID, s.UserID, s.WarehouseID, string(s.PaymentType), string(s.Status),
		s.Subtotal, s.Discount, s.Total, s.Notes, s.CreatedAt, s.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("customer, user or warehouse: %w", shared.ErrNotFound)
	}
	return err
}

func (r *txRepository) InsertSaleItems(ctx context.Context, items []Item) error {
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(`INSERT INTO sale_items (id, sale_id, product_id, position, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, it.ID, it.SaleID, it.ProductID, i+1, it.Quantity, it.UnitPrice, it.Subtotal)
	}
	br := r.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (r *txRepository) LockSale(ctx context.Context, saleID uuid.UUID) (Sale, error) {
	var s Sale
	err := r.tx.QueryRow(ctx, `SELECT id, sale_number, customer_id, user_id, warehouse_id, payment_type, status,
       subtotal, discount, total, COALESCE(notes, ''), created_at, updated_at
FROM sales WHERE id = $1 FOR UPDATE`, saleID).
		Scan(&s.ID, &s.Number, &s.CustomerID, &s.UserID, &s.WarehouseID, &s.PaymentType, &s.Status,
			&s.Subtotal, &s.Discount, &s.Total, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("sale %s: %w", saleID, shared.ErrNotFound)
	}
	if err != nil {
		return Sale{}, err
	}
	s.Items, err = loadItems(ctx, r.tx, saleID)
	if err != nil {
		return Sale{}, err
	}
	return s, nil
}

func (r *txRepository) SetSaleStatus(ctx context.Context, saleID uuid.UUID, status Status, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET status = $2, updated_at = $3 WHERE id = $1`, saleID, string(status), at)
	return err
}
