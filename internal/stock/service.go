package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// CacheNamespace versions cached stock read models.
const CacheNamespace = "stock"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListStock(ctx context.Context, warehouseID uuid.UUID, search string) ([]Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, int, error)
	Summary(ctx context.Context, warehouseID uuid.UUID) (Summary, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReadCache caches summaries between stock posts.
type ReadCache interface {
	BuildKey(ctx context.Context, namespace string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, namespace string) error
}

// Recorder counts ledger outcomes.
type Recorder interface {
	ObserveLedger(ledger, operation string, err error)
}

// Service exposes the stock ledger to warehouse operators.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   ReadCache
	metrics Recorder
	logger  *slog.Logger
}

// NewService builds Service. audit, cache and metrics are optional.
func NewService(repo RepositoryPort, audit AuditPort, cache ReadCache, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, metrics: metrics, logger: logger}
}

// Adjust posts a signed manual adjustment.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Result, error) {
	return s.post(ctx, "adjust", Adjustment{
		WarehouseID: in.WarehouseID,
		ProductID:   in.ProductID,
		Delta:       in.Delta,
		Kind:        KindAdjustment,
		UserID:      in.UserID,
		Reason:      in.Reason,
	})
}

// Entry adds quantity units with kind ENTRY.
func (s *Service) Entry(ctx context.Context, in MoveInput) (Result, error) {
	if in.Quantity <= 0 {
		return Result{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	return s.post(ctx, "entry", EntryAdjustment(in, KindEntry, nil))
}

// Exit removes quantity units with kind EXIT.
func (s *Service) Exit(ctx context.Context, in MoveInput) (Result, error) {
	if in.Quantity <= 0 {
		return Result{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	return s.post(ctx, "exit", ExitAdjustment(in, KindExit, nil))
}

func (s *Service) post(ctx context.Context, op string, adj Adjustment) (Result, error) {
	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = Post(ctx, tx, adj)
		return err
	})
	if s.metrics != nil {
		s.metrics.ObserveLedger("stock", op, err)
	}
	if err != nil {
		return Result{}, err
	}
	s.afterPost(ctx, adj, res)
	return res, nil
}

func (s *Service) afterPost(ctx context.Context, adj Adjustment, res Result) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, CacheNamespace); err != nil {
			s.logger.Warn("stock cache bump", slog.Any("error", err))
		}
	}
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  adj.UserID,
		Action:   fmt.Sprintf("stock:%s", adj.Kind),
		Entity:   "warehouse_stock",
		EntityID: fmt.Sprintf("%s:%s", adj.WarehouseID, adj.ProductID),
		Meta: map[string]any{
			"delta":    res.Delta,
			"previous": res.PreviousQuantity,
			"new":      res.NewQuantity,
			"reason":   adj.Reason,
		},
	})
	if err != nil {
		s.logger.Warn("stock audit", slog.Any("error", err))
	}
}

// Stock lists a warehouse's levels, optionally filtered by product name or SKU.
func (s *Service) Stock(ctx context.Context, warehouseID uuid.UUID, search string) ([]Item, error) {
	if warehouseID == uuid.Nil {
		return nil, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	return s.repo.ListStock(ctx, warehouseID, search)
}

// Movements pages through a warehouse's movements, newest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) (MovementPage, error) {
	if filter.WarehouseID == uuid.Nil {
		return MovementPage{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage, 50)
	items, total, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return MovementPage{}, fmt.Errorf("list movements: %w", err)
	}
	if items == nil {
		items = []MovementView{}
	}
	return MovementPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Summary aggregates a warehouse's stock with its low-stock items.
func (s *Service) Summary(ctx context.Context, warehouseID uuid.UUID) (Summary, error) {
	if warehouseID == uuid.Nil {
		return Summary{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	if s.cache == nil {
		return s.repo.Summary(ctx, warehouseID)
	}
	loader := func(ctx context.Context) (any, error) {
		return s.repo.Summary(ctx, warehouseID)
	}
	key, err := s.cache.BuildKey(ctx, CacheNamespace, "summary", warehouseID.String())
	if err != nil {
		s.logger.Warn("stock cache key", slog.Any("error", err))
		return s.repo.Summary(ctx, warehouseID)
	}
	var out Summary
	if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
		return Summary{}, err
	}
	return out, nil
}
