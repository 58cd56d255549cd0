package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes the transactional writes owned by the stock ledger.
// Movements are append-only.
type TxRepository interface {
	// LockStockLevel returns the level row locked for the rest of the
	// transaction. A missing row reads as quantity zero. Unknown warehouse
	// or product ids fail with shared.ErrNotFound.
	LockStockLevel(ctx context.Context, warehouseID, productID uuid.UUID) (Level, error)
	SaveStockLevel(ctx context.Context, level Level) error
	AppendMovement(ctx context.Context, mv Movement) error
}

// Post applies adj inside the caller's transaction. A rejected adjustment
// writes nothing.
func Post(ctx context.Context, tx TxRepository, adj Adjustment) (Result, error) {
	if err := validateAdjustment(adj); err != nil {
		return Result{}, err
	}
	at := adj.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	level, err := tx.LockStockLevel(ctx, adj.WarehouseID, adj.ProductID)
	if err != nil {
		return Result{}, fmt.Errorf("stock: lock level: %w", err)
	}
	previous := level.Quantity
	next := previous + adj.Delta
	if next < 0 {
		return Result{}, &InsufficientStockError{
			WarehouseID: adj.WarehouseID,
			ProductID:   adj.ProductID,
			Available:   previous,
			Requested:   -adj.Delta,
		}
	}

	level.WarehouseID = adj.WarehouseID
	level.ProductID = adj.ProductID
	level.Quantity = next
	level.UpdatedAt = at
	if err := tx.SaveStockLevel(ctx, level); err != nil {
		return Result{}, fmt.Errorf("stock: save level: %w", err)
	}
	mv := Movement{
		ID:               uuid.New(),
		WarehouseID:      adj.WarehouseID,
		ProductID:        adj.ProductID,
		Kind:             adj.Kind,
		Delta:            adj.Delta,
		PreviousQuantity: previous,
		NewQuantity:      next,
		Reason:           adj.Reason,
		ReferenceID:      adj.ReferenceID,
		UserID:           adj.UserID,
		CreatedAt:        at,
	}
	if err := tx.AppendMovement(ctx, mv); err != nil {
		return Result{}, fmt.Errorf("stock: append movement: %w", err)
	}
	return Result{
		WarehouseID:      adj.WarehouseID,
		ProductID:        adj.ProductID,
		Delta:            adj.Delta,
		PreviousQuantity: previous,
		NewQuantity:      next,
	}, nil
}

// EntryAdjustment builds an inbound adjustment of quantity units.
func EntryAdjustment(in MoveInput, kind Kind, referenceID *uuid.UUID) Adjustment {
	return Adjustment{
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		Delta:       in.Quantity,
		Kind:        kind,
		UserID:      in.UserID,
		Reason:      in.Reason,
		ReferenceID: referenceID,
	}
}

// ExitAdjustment builds an outbound adjustment of quantity units.
func ExitAdjustment(in MoveInput, kind Kind, referenceID *uuid.UUID) Adjustment {
	adj := EntryAdjustment(in, kind, referenceID)
	adj.Delta = -adj.Delta
	return adj
}

func validateAdjustment(adj Adjustment) error {
	if adj.WarehouseID == uuid.Nil || adj.ProductID == uuid.Nil {
		return fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	if adj.UserID == uuid.Nil {
		return fmt.Errorf("%w: acting user required", shared.ErrValidation)
	}
	if adj.Delta == 0 {
		return fmt.Errorf("%w: quantity must be non zero", shared.ErrValidation)
	}
	if !adj.Kind.Valid() {
		return fmt.Errorf("%w: unknown movement kind %q", shared.ErrValidation, adj.Kind)
	}
	return nil
}
