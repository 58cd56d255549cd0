package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type tags a notification event.
type Type string

const (
	TypeSaleCreated     Type = "SALE_CREATED"
	TypeSaleCancelled   Type = "SALE_CANCELLED"
	TypePaymentReceived Type = "PAYMENT_RECEIVED"
	TypeStockLow        Type = "STOCK_LOW"
	TypeAccountOverdue  Type = "ACCOUNT_OVERDUE"
)

// RoleAdmin targets every administrator.
const RoleAdmin = "ADMIN"

// Event is the payload handed to the notification collaborator.
type Event struct {
	Type       Type           `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	TargetRole string         `json:"target_role,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher hands events to the delivery side.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
