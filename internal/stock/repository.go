package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner *db.TxRunner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// WithTx executes the callback inside a repeatable-read transaction,
// replaying it on serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return r.runner.Run(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// ListStock lists levels joined with products ordered by product name.
func (r *Repository) ListStock(ctx context.Context, warehouseID uuid.UUID, search string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku, p.unit, p.price, p.min_stock, ws.quantity, ws.updated_at
FROM warehouse_stock ws
JOIN products p ON p.id = ws.product_id
WHERE ws.warehouse_id = $1
  AND ($2 = '' OR p.name ILIKE '%' || $2 || '%' OR p.sku ILIKE '%' || $2 || '%')
ORDER BY p.name`, warehouseID, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.SKU, &it.Unit, &it.Price, &it.MinStock, &it.Quantity, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListMovements returns one page of movements and the total count.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE warehouse_id = $1`, filter.WarehouseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (filter.Page - 1) * filter.PerPage
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.warehouse_id, m.product_id, m.kind, m.delta, m.previous_quantity, m.new_quantity,
       COALESCE(m.reason, ''), m.reference_id, m.user_id, m.created_at,
       p.name, p.sku, u.name
FROM stock_movements m
JOIN products p ON p.id = m.product_id
JOIN users u ON u.id = m.user_id
WHERE m.warehouse_id = $1
ORDER BY m.created_at DESC, m.id
LIMIT $2 OFFSET $3`, filter.WarehouseID, filter.PerPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []MovementView{}
	for rows.Next() {
		var v MovementView
		if err := rows.Scan(&v.ID, &v.WarehouseID, &v.ProductID, &v.Kind, &v.Delta, &v.PreviousQuantity, &v.NewQuantity,
			&v.Reason, &v.ReferenceID, &v.UserID, &v.CreatedAt, &v.ProductName, &v.SKU, &v.UserName); err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Summary aggregates totals and low-stock items for a warehouse.
func (r *Repository) Summary(ctx context.Context, warehouseID uuid.UUID) (Summary, error) {
	sum := Summary{WarehouseID: warehouseID, LowStock: []LowStockItem{}}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM warehouse_stock WHERE warehouse_id = $1`, warehouseID).
		Scan(&sum.TotalProducts, &sum.TotalUnits)
	if err != nil {
		return Summary{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, p.sku, ws.quantity, p.min_stock
FROM warehouse_stock ws
JOIN products p ON p.id = ws.product_id
WHERE ws.warehouse_id = $1 AND ws.quantity <= p.min_stock
ORDER BY ws.quantity, p.name`, warehouseID)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.SKU, &it.Quantity, &it.MinStock); err != nil {
			return Summary{}, err
		}
		sum.LowStock = append(sum.LowStock, it)
	}
	return sum, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the stock ledger writes to an open transaction so
// other ledgers can share it.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const selectLevelForUpdate = `SELECT warehouse_id, product_id, quantity, updated_at FROM warehouse_stock WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`

func (r *txRepository) LockStockLevel(ctx context.Context, warehouseID, productID uuid.UUID) (Level, error) {
	var lvl Level
	err := r.tx.QueryRow(ctx, selectLevelForUpdate, warehouseID, productID).
		Scan(&lvl.WarehouseID, &lvl.ProductID, &lvl.Quantity, &lvl.UpdatedAt)
	if err == nil {
		return lvl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Level{}, err
	}
	// First movement for the pair: create the zero row so it can be locked.
	_, err = r.tx.Exec(ctx, `INSERT INTO warehouse_stock (warehouse_id, product_id, quantity, updated_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (warehouse_id, product_id) DO NOTHING`, warehouseID, productID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Level{}, fmt.Errorf("warehouse %s or product %s: %w", warehouseID, productID, shared.ErrNotFound)
		}
		return Level{}, err
	}
	err = r.tx.QueryRow(ctx, selectLevelForUpdate, warehouseID, productID).
		Scan(&lvl.WarehouseID, &lvl.ProductID, &lvl.Quantity, &lvl.UpdatedAt)
	if err != nil {
		return Level{}, err
	}
	return lvl, nil
}

func (r *txRepository) SaveStockLevel(ctx context.Context, level Level) error {
	_, err := r.tx.Exec(ctx, `UPDATE warehouse_stock SET quantity=$3, updated_at=$4 WHERE warehouse_id=$1 AND product_id=$2`,
		level.WarehouseID, level.ProductID, level.Quantity, level.UpdatedAt)
	return err
}

func (r *txRepository) AppendMovement(ctx context.Context, mv Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, warehouse_id, product_id, kind, delta, previous_quantity, new_quantity, reason, reference_id, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		mv.ID, mv.WarehouseID, mv.ProductID, string(mv.Kind), mv.Delta, mv.PreviousQuantity, mv.NewQuantity, nullString(mv.Reason), mv.ReferenceID, mv.UserID, mv.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("movement user %s: %w", mv.UserID, shared.ErrNotFound)
	}
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
