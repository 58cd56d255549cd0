package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/salenumber"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
)

// TxRepository composes every ledger a sale touches so creation and
// cancellation commit or roll back as one unit.
type TxRepository interface {
	stock.TxRepository
	receivable.TxRepository
	salenumber.TxRepository
	GetProduct(ctx context.Context, productID uuid.UUID) (Product, error)
	InsertSale(ctx context.Context, sale Sale) error
	InsertSaleItems(ctx context.Context, items []Item) error
	// LockSale loads the sale with its items and locks the header row.
	LockSale(ctx context.Context, saleID uuid.UUID) (Sale, error)
	SetSaleStatus(ctx context.Context, saleID uuid.UUID, status Status, at time.Time) error
}

// priced is a validated create request.
type priced struct {
	input    CreateInput
	subtotal decimal.Decimal
	discount decimal.Decimal
	total    decimal.Decimal
}

// stockTouch pairs a stock post with the product it moved.
type stockTouch struct {
	product Product
	result  stock.Result
}

// created is everything a committed sale produced.
type created struct {
	sale    Sale
	account *receivable.Account
	touched []stockTouch
}

func price(in CreateInput) (priced, error) {
	if !in.PaymentType.Valid() {
		return priced{}, fmt.Errorf("%w: unknown payment type %q", shared.ErrValidation, in.PaymentType)
	}
	if in.PaymentType == PaymentCredit && (in.CustomerID == nil || *in.CustomerID == uuid.Nil) {
		return priced{}, fmt.Errorf("%w: credit sales require a customer", shared.ErrValidation)
	}
	if in.UserID == uuid.Nil {
		return priced{}, fmt.Errorf("%w: acting user required", shared.ErrValidation)
	}
	if in.WarehouseID == uuid.Nil {
		return priced{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	if len(in.Items) == 0 {
		return priced{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	subtotal := decimal.Zero
	for i, line := range in.Items {
		if line.ProductID == uuid.Nil {
			return priced{}, fmt.Errorf("%w: item %d: product required", shared.ErrValidation, i+1)
		}
		if line.Quantity <= 0 {
			return priced{}, fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return priced{}, fmt.Errorf("%w: item %d: unit price must not be negative", shared.ErrValidation, i+1)
		}
		if !shared.IsCents(line.UnitPrice) {
			return priced{}, fmt.Errorf("%w: item %d: unit price has more than %d decimals", shared.ErrValidation, i+1, shared.MoneyScale)
		}
		subtotal = subtotal.Add(lineSubtotal(line))
	}
	discount := in.Discount
	if discount.IsNegative() {
		return priced{}, fmt.Errorf("%w: discount must not be negative", shared.ErrValidation)
	}
	if !shared.IsCents(discount) {
		return priced{}, fmt.Errorf("%w: discount has more than %d decimals", shared.ErrValidation, shared.MoneyScale)
	}
	if discount.GreaterThan(subtotal) {
		return priced{}, fmt.Errorf("%w: discount exceeds subtotal", shared.ErrValidation)
	}
	return priced{input: in, subtotal: subtotal, discount: discount, total: subtotal.Sub(discount)}, nil
}

func lineSubtotal(line LineInput) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// create runs inside one transaction: products, credit authorisation with
// the customer row locked, number, header and lines, stock exits, then the
// receivable and the debt increase.
func create(ctx context.Context, tx TxRepository, numbers *salenumber.Generator, p priced, at time.Time, term time.Duration) (created, error) {
	in := p.input
	products := make(map[uuid.UUID]Product, len(in.Items))
	for _, line := range in.Items {
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		prod, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return created{}, fmt.Errorf("sales: product %s: %w", line.ProductID, err)
		}
		if !prod.Active {
			return created{}, fmt.Errorf("%w: product %s is inactive", shared.ErrValidation, prod.SKU)
		}
		products[line.ProductID] = prod
	}

	if in.PaymentType == PaymentCredit {
		if _, err := credit.Authorize(ctx, tx, *in.CustomerID, p.total); err != nil {
			return created{}, err
		}
	}

	number, err := numbers.Next(ctx, tx, at)
	if err != nil {
		return created{}, err
	}
	sale := Sale{
		ID:          uuid.New(),
		Number:      number,
		CustomerID:  in.CustomerID,
		UserID:      in.UserID,
		WarehouseID: in.WarehouseID,
		PaymentType: in.PaymentType,
		Status:      StatusCompleted,
		Subtotal:    p.subtotal,
		Discount:    p.discount,
		Total:       p.total,
		Notes:       in.Notes,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	sale.Items = make([]Item, 0, len(in.Items))
	for _, line := range in.Items {
		prod := products[line.ProductID]
		sale.Items = append(sale.Items, Item{
			ID:          uuid.New(),
			SaleID:      sale.ID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    lineSubtotal(line),
			ProductName: prod.Name,
			SKU:         prod.SKU,
		})
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return created{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	if err := tx.InsertSaleItems(ctx, sale.Items); err != nil {
		return created{}, fmt.Errorf("sales: insert items: %w", err)
	}

	out := created{sale: sale}
	reason := fmt.Sprintf("Sale %s", sale.Number)
	for _, item := range sale.Items {
		res, err := stock.Post(ctx, tx, stock.Adjustment{
			WarehouseID: sale.WarehouseID,
			ProductID:   item.ProductID,
			Delta:       -item.Quantity,
			Kind:        stock.KindSale,
			UserID:      sale.UserID,
			Reason:      reason,
			ReferenceID: &sale.ID,
			At:          at,
		})
		if err != nil {
			return created{}, err
		}
		out.touched = append(out.touched, stockTouch{product: products[item.ProductID], result: res})
	}

	if sale.PaymentType == PaymentCredit {
		acc, err := receivable.Open(ctx, tx, receivable.OpenInput{
			SaleID:     sale.ID,
			CustomerID: *sale.CustomerID,
			Total:      sale.Total,
			DueDate:    at.Add(term),
			At:         at,
		})
		if err != nil {
			return created{}, err
		}
		if _, err := credit.Raise(ctx, tx, *sale.CustomerID, sale.Total); err != nil {
			return created{}, err
		}
		out.account = &acc
	}
	return out, nil
}

// cancel restores every line, marks the sale CANCELLED and, for credit
// sales, writes off the receivable and lowers the debt.
func cancel(ctx context.Context, tx TxRepository, saleID, userID uuid.UUID, at time.Time) (Sale, []stock.Result, error) {
	sale, err := tx.LockSale(ctx, saleID)
	if err != nil {
		return Sale{}, nil, fmt.Errorf("sales: lock sale: %w", err)
	}
	if sale.Status == StatusCancelled {
		return Sale{}, nil, fmt.Errorf("sale %s: %w", sale.Number, shared.ErrAlreadyCancelled)
	}

	reason := fmt.Sprintf("Cancellation of sale %s", sale.Number)
	restored := make([]stock.Result, 0, len(sale.Items))
	for _, item := range sale.Items {
		res, err := stock.Post(ctx, tx, stock.Adjustment{
			WarehouseID: sale.WarehouseID,
			ProductID:   item.ProductID,
			Delta:       item.Quantity,
			Kind:        stock.KindAdjustment,
			UserID:      userID,
			Reason:      reason,
			ReferenceID: &sale.ID,
			At:          at,
		})
		if err != nil {
			return Sale{}, nil, err
		}
		restored = append(restored, res)
	}

	if err := tx.SetSaleStatus(ctx, sale.ID, StatusCancelled, at); err != nil {
		return Sale{}, nil, fmt.Errorf("sales: set status: %w", err)
	}
	sale.Status = StatusCancelled
	sale.UpdatedAt = at

	if sale.PaymentType == PaymentCredit && sale.CustomerID != nil {
		if _, err := receivable.Reverse(ctx, tx, sale.ID, at); err != nil {
			return Sale{}, nil, err
		}
		if _, err := credit.Lower(ctx, tx, *sale.CustomerID, sale.Total); err != nil {
			return Sale{}, nil, err
		}
	}
	return sale, restored, nil
}
