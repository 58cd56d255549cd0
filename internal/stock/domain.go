package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Kind enumerates movement kinds recorded in stock_movements.
type Kind string

const (
	// KindEntry represents an inbound entry.
	KindEntry Kind = "ENTRY"
	// KindExit represents an outbound exit.
	KindExit Kind = "EXIT"
	// KindAdjustment indicates manual or compensating adjustments.
	KindAdjustment Kind = "ADJUSTMENT"
	// KindSale is written by the sale engine for each line item.
	KindSale Kind = "SALE"
	// KindTransfer is reserved for warehouse transfers.
	KindTransfer Kind = "TRANSFER"
	// KindProduction is reserved for production conversions.
	KindProduction Kind = "PRODUCTION"
)

// Valid reports whether k is a known movement kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEntry, KindExit, KindAdjustment, KindSale, KindTransfer, KindProduction:
		return true
	}
	return false
}

// Level is the quantity of one product in one warehouse.
type Level struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	Quantity    int
	UpdatedAt   time.Time
}

// Movement is one append-only stock_movements row.
type Movement struct {
	ID               uuid.UUID  `json:"id"`
	WarehouseID      uuid.UUID  `json:"warehouse_id"`
	ProductID        uuid.UUID  `json:"product_id"`
	Kind             Kind       `json:"kind"`
	Delta            int        `json:"delta"`
	PreviousQuantity int        `json:"previous_quantity"`
	NewQuantity      int        `json:"new_quantity"`
	Reason           string     `json:"reason,omitempty"`
	ReferenceID      *uuid.UUID `json:"reference_id,omitempty"`
	UserID           uuid.UUID  `json:"user_id"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Adjustment describes one signed quantity change.
type Adjustment struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	Delta       int
	Kind        Kind
	UserID      uuid.UUID
	Reason      string
	ReferenceID *uuid.UUID
	At          time.Time
}

// Result reports the quantity before and after an accepted adjustment.
type Result struct {
	WarehouseID      uuid.UUID `json:"warehouse_id"`
	ProductID        uuid.UUID `json:"product_id"`
	Delta            int       `json:"delta"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
}

// MoveInput describes an entry or exit requested by a warehouse operator.
type MoveInput struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	Quantity    int
	Reason      string
	UserID      uuid.UUID
}

// AdjustInput describes a signed manual adjustment.
type AdjustInput struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	Delta       int
	Reason      string
	UserID      uuid.UUID
}

// Item is a stock row joined with its product for listings.
type Item struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	MinStock    int             `json:"min_stock"`
	Quantity    int             `json:"quantity"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MovementView decorates a movement with product and user names.
type MovementView struct {
	Movement
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	UserName    string `json:"user_name"`
}

// MovementFilter pages through a warehouse's movements.
type MovementFilter struct {
	WarehouseID uuid.UUID
	Page        int
	PerPage     int
}

// MovementPage is one page of movements, newest first.
type MovementPage struct {
	Items      []MovementView    `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// LowStockItem is a product at or below its minimum stock.
type LowStockItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	MinStock    int       `json:"min_stock"`
}

// Summary aggregates one warehouse's stock.
type Summary struct {
	WarehouseID   uuid.UUID      `json:"warehouse_id"`
	TotalProducts int            `json:"total_products"`
	TotalUnits    int            `json:"total_units"`
	LowStock      []LowStockItem `json:"low_stock_items"`
}

// InsufficientStockError reports a decrement that would leave the level negative.
type InsufficientStockError struct {
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// ProblemFields exposes correction context to API callers.
func (e *InsufficientStockError) ProblemFields() map[string]any {
	return map[string]any{
		"warehouse_id": e.WarehouseID,
		"product_id":   e.ProductID,
		"available":    e.Available,
		"requested":    e.Requested,
	}
}
