package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders money with thousands separators, e.g. 1,250.00.
func FormatAmount(amount decimal.Decimal) string {
	return printer.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

// SaleCreated announces a completed sale.
func SaleCreated(saleID uuid.UUID, saleNumber, paymentType string, total decimal.Decimal, sellerID uuid.UUID, at time.Time) Event {
	return Event{
		Type:       TypeSaleCreated,
		Title:      "New sale",
		Message:    printer.Sprintf("Sale %s registered for %s (%s)", saleNumber, FormatAmount(total), paymentType),
		TargetRole: RoleAdmin,
		Metadata: map[string]any{
			"saleId":      saleID.String(),
			"saleNumber":  saleNumber,
			"paymentType": paymentType,
			"total":       total.StringFixed(2),
			"userId":      sellerID.String(),
		},
		OccurredAt: at,
	}
}

// SaleCancelled announces a cancellation.
func SaleCancelled(saleID uuid.UUID, saleNumber string, total decimal.Decimal, userID uuid.UUID, at time.Time) Event {
	return Event{
		Type:       TypeSaleCancelled,
		Title:      "Sale cancelled",
		Message:    printer.Sprintf("Sale %s for %s was cancelled", saleNumber, FormatAmount(total)),
		TargetRole: RoleAdmin,
		Metadata: map[string]any{
			"saleId":     saleID.String(),
			"saleNumber": saleNumber,
			"total":      total.StringFixed(2),
			"userId":     userID.String(),
		},
		OccurredAt: at,
	}
}

// PaymentReceived announces a payment against a receivable.
func PaymentReceived(accountID uuid.UUID, customerName, saleNumber string, amount, newBalance decimal.Decimal, newStatus string, at time.Time) Event {
	return Event{
		Type:       TypePaymentReceived,
		Title:      "Payment received",
		Message:    printer.Sprintf("Received %s from %s (sale %s)", FormatAmount(amount), customerName, saleNumber),
		TargetRole: RoleAdmin,
		Metadata: map[string]any{
			"accountId":  accountID.String(),
			"amount":     amount.StringFixed(2),
			"newBalance": newBalance.StringFixed(2),
			"newStatus":  newStatus,
		},
		OccurredAt: at,
	}
}

// StockLow warns that a product reached its minimum stock in a warehouse.
func StockLow(warehouseID, productID uuid.UUID, productName string, quantity, minStock int, at time.Time) Event {
	title := "Low stock"
	if quantity == 0 {
		title = "Out of stock"
	}
	return Event{
		Type:       TypeStockLow,
		Title:      title,
		Message:    printer.Sprintf("%s has %d units left (minimum %d)", productName, quantity, minStock),
		TargetRole: RoleAdmin,
		Metadata: map[string]any{
			"warehouseId": warehouseID.String(),
			"productId":   productID.String(),
			"quantity":    quantity,
			"minStock":    minStock,
		},
		OccurredAt: at,
	}
}

// AccountOverdue warns about a receivable past its due date.
func AccountOverdue(accountID uuid.UUID, customerName, saleNumber string, balance decimal.Decimal, daysOverdue int, at time.Time) Event {
	return Event{
		Type:       TypeAccountOverdue,
		Title:      "Account overdue",
		Message:    printer.Sprintf("%s owes %s on sale %s, %d days overdue", customerName, FormatAmount(balance), saleNumber, daysOverdue),
		TargetRole: RoleAdmin,
		Metadata: map[string]any{
			"accountId":   accountID.String(),
			"saleNumber":  saleNumber,
			"balance":     balance.StringFixed(2),
			"daysOverdue": daysOverdue,
		},
		OccurredAt: at,
	}
}
