package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
)

// PaymentType enumerates how a sale is settled.
type PaymentType string

const (
	PaymentCash   PaymentType = "CASH"
	PaymentCredit PaymentType = "CREDIT"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	return p == PaymentCash || p == PaymentCredit
}

// Status enumerates sale statuses. COMPLETED is the only initial state and
// CANCELLED is terminal.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	// StatusPending exists in the schema but is never produced.
	StatusPending Status = "PENDING"
)

// Product is the sale-relevant slice of a catalog product.
type Product struct {
	ID       uuid.UUID
	Name     string
	SKU      string
	MinStock int
	Active   bool
}

// Sale is the sale header with its line items.
type Sale struct {
	ID           uuid.UUID       `json:"id"`
	Number       string          `json:"sale_number"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
	UserID       uuid.UUID       `json:"user_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	PaymentType  PaymentType     `json:"payment_type"`
	Status       Status          `json:"status"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CustomerName string          `json:"customer_name,omitempty"`
	UserName     string          `json:"user_name,omitempty"`
	Items        []Item          `json:"items,omitempty"`
}

// Item is one immutable sale line. UnitPrice is captured at sale time.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	SaleID      uuid.UUID       `json:"sale_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductName string          `json:"product_name,omitempty"`
	SKU         string          `json:"sku,omitempty"`
}

// LineInput is one requested sale line.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateInput requests a sale.
type CreateInput struct {
	CustomerID     *uuid.UUID
	WarehouseID    uuid.UUID
	PaymentType    PaymentType
	Items          []LineInput
	Discount       decimal.Decimal
	Notes          string
	UserID         uuid.UUID
	IdempotencyKey string
}

// CancelResult confirms a cancellation.
type CancelResult struct {
	SaleID     uuid.UUID      `json:"sale_id"`
	SaleNumber string         `json:"sale_number"`
	Status     Status         `json:"status"`
	Restored   []stock.Result `json:"restored"`
}

// ListFilter scopes sale listings.
type ListFilter struct {
	PaymentType PaymentType
	Status      Status
	UserID      *uuid.UUID
	CustomerID  *uuid.UUID
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

// Page is one page of sales, newest first.
type Page struct {
	Items      []Sale            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Totals aggregates COMPLETED sales.
type Totals struct {
	Count       int             `json:"count"`
	Total       decimal.Decimal `json:"total"`
	CashTotal   decimal.Decimal `json:"cash_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
}

// DailySummary reports one business day of sales.
type DailySummary struct {
	Date   string     `json:"date"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Totals
}

// ProductSales ranks a product by revenue.
type ProductSales struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SellerReport reports one seller's sales over a period.
type SellerReport struct {
	UserID      uuid.UUID      `json:"user_id"`
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	TopProducts []ProductSales `json:"top_products"`
	Totals
}

// TopProductsLimit caps the seller report ranking.
const TopProductsLimit = 10
