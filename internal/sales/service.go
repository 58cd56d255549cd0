package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/notify"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/salenumber"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
)

// IdempotencyModule scopes sale idempotency keys.
const IdempotencyModule = "sales"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, saleID uuid.UUID) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	Totals(ctx context.Context, from, to time.Time, userID *uuid.UUID) (Totals, error)
	TopProducts(ctx context.Context, userID uuid.UUID, from, to time.Time, limit int) ([]ProductSales, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves client request keys.
type IdempotencyPort interface {
	Reserve(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// Invalidator drops cached read models after a sale moves stock or debt.
type Invalidator interface {
	Bump(ctx context.Context, namespace string) error
}

// Recorder counts engine outcomes.
type Recorder interface {
	ObserveLedger(ledger, operation string, err error)
	ObserveSale(paymentType string, total decimal.Decimal)
}

// ServiceConfig groups engine settings.
type ServiceConfig struct {
	// ReceivableTerm is added to the sale time to get the due date.
	ReceivableTerm time.Duration
	LowStockAlerts bool
}

// Ports groups the optional collaborators of Service.
type Ports struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Events      notify.Publisher
	Cache       Invalidator
	Metrics     Recorder
	Logger      *slog.Logger
}

// Service is the sale engine: the only place sales, stock, receivables and
// debt change together.
type Service struct {
	repo    RepositoryPort
	numbers *salenumber.Generator
	cfg     ServiceConfig
	ports   Ports
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, numbers *salenumber.Generator, cfg ServiceConfig, ports Ports) *Service {
	if numbers == nil {
		numbers = salenumber.NewGenerator(time.UTC)
	}
	if cfg.ReceivableTerm <= 0 {
		cfg.ReceivableTerm = receivable.DefaultTerm
	}
	if ports.Events == nil {
		ports.Events = notify.Nop{}
	}
	logger := ports.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		numbers: numbers,
		cfg:     cfg,
		ports:   ports,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and records a sale, decrementing stock for every line
// and, for credit sales, opening a receivable and raising the debt. Nothing
// is visible unless every step succeeds.
func (s *Service) Create(ctx context.Context, in CreateInput) (Sale, error) {
	p, err := price(in)
	if err != nil {
		return Sale{}, err
	}
	reserved := false
	if in.IdempotencyKey != "" && s.ports.Idempotency != nil {
		if err := s.ports.Idempotency.Reserve(ctx, IdempotencyModule, in.IdempotencyKey); err != nil {
			return Sale{}, err
		}
		reserved = true
	}

	at := s.now()
	var out created
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = create(ctx, tx, s.numbers, p, at, s.cfg.ReceivableTerm)
		return err
	})
	s.observe("create", err)
	if err != nil {
		if reserved {
			if relErr := s.ports.Idempotency.Release(ctx, IdempotencyModule, in.IdempotencyKey); relErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", in.IdempotencyKey), slog.Any("error", relErr))
			}
		}
		return Sale{}, err
	}
	s.afterCreate(ctx, out)
	return out.sale, nil
}

// Cancel reverses a COMPLETED sale. Cancelling twice fails with
// shared.ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, saleID, userID uuid.UUID) (CancelResult, error) {
	if saleID == uuid.Nil {
		return CancelResult{}, fmt.Errorf("%w: sale required", shared.ErrValidation)
	}
	if userID == uuid.Nil {
		return CancelResult{}, fmt.Errorf("%w: acting user required", shared.ErrValidation)
	}
	at := s.now()
	var (
		sale     Sale
		restored []stock.Result
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, restored, err = cancel(ctx, tx, saleID, userID, at)
		return err
	})
	s.observe("cancel", err)
	if err != nil {
		return CancelResult{}, err
	}
	s.afterCancel(ctx, sale, userID, at)
	return CancelResult{SaleID: sale.ID, SaleNumber: sale.Number, Status: sale.Status, Restored: restored}, nil
}

func (s *Service) observe(op string, err error) {
	if s.ports.Metrics == nil {
		return
	}
	if err != nil && errors.Is(err, shared.ErrValidation) {
		// Rejected input never reached a ledger.
		return
	}
	s.ports.Metrics.ObserveLedger("sales", op, err)
}

func (s *Service) afterCreate(ctx context.Context, out created) {
	sale := out.sale
	s.invalidate(ctx, sale.PaymentType)
	if s.ports.Metrics != nil {
		s.ports.Metrics.ObserveSale(string(sale.PaymentType), sale.Total)
	}
	if s.ports.Audit != nil {
		meta := map[string]any{
			"sale_number":  sale.Number,
			"payment_type": string(sale.PaymentType),
			"total":        sale.Total.StringFixed(2),
			"items":        len(sale.Items),
		}
		if out.account != nil {
			meta["receivable_id"] = out.account.ID.String()
		}
		s.record(ctx, shared.AuditLog{
			ActorID:  sale.UserID,
			Action:   "sales:create",
			Entity:   "sales",
			EntityID: sale.ID.String(),
			Meta:     meta,
		})
	}
	s.publish(ctx, notify.SaleCreated(sale.ID, sale.Number, string(sale.PaymentType), sale.Total, sale.UserID, sale.CreatedAt))
	if !s.cfg.LowStockAlerts {
		return
	}
	for _, t := range out.touched {
		if t.result.NewQuantity <= t.product.MinStock {
			s.publish(ctx, notify.StockLow(t.result.WarehouseID, t.result.ProductID, t.product.Name, t.result.NewQuantity, t.product.MinStock, sale.CreatedAt))
		}
	}
}

func (s *Service) afterCancel(ctx context.Context, sale Sale, userID uuid.UUID, at time.Time) {
	s.invalidate(ctx, sale.PaymentType)
	if s.ports.Audit != nil {
		s.record(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   "sales:cancel",
			Entity:   "sales",
			EntityID: sale.ID.String(),
			Meta: map[string]any{
				"sale_number":  sale.Number,
				"payment_type": string(sale.PaymentType),
				"total":        sale.Total.StringFixed(2),
			},
		})
	}
	s.publish(ctx, notify.SaleCancelled(sale.ID, sale.Number, sale.Total, userID, at))
}

func (s *Service) invalidate(ctx context.Context, pt PaymentType) {
	if s.ports.Cache == nil {
		return
	}
	namespaces := []string{stock.CacheNamespace}
	if pt == PaymentCredit {
		namespaces = append(namespaces, receivable.CacheNamespace)
	}
	for _, ns := range namespaces {
		if err := s.ports.Cache.Bump(ctx, ns); err != nil {
			s.logger.Warn("cache bump", slog.String("namespace", ns), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if err := s.ports.Audit.Record(ctx, log); err != nil {
		s.logger.Warn("sales audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.ports.Events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish sales event", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}

// Get returns a sale with its items.
func (s *Service) Get(ctx context.Context, saleID uuid.UUID) (Sale, error) {
	if saleID == uuid.Nil {
		return Sale{}, fmt.Errorf("%w: sale required", shared.ErrValidation)
	}
	return s.repo.Get(ctx, saleID)
}

// List pages through sales, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.PaymentType != "" && !filter.PaymentType.Valid() {
		return Page{}, fmt.Errorf("%w: unknown payment type %q", shared.ErrValidation, filter.PaymentType)
	}
	switch filter.Status {
	case "", StatusCompleted, StatusCancelled, StatusPending:
	default:
		return Page{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage, shared.DefaultPerPage)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list sales: %w", err)
	}
	if items == nil {
		items = []Sale{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// DailySummary totals COMPLETED sales for the business day containing day,
// optionally for one seller.
func (s *Service) DailySummary(ctx context.Context, day time.Time, userID *uuid.UUID) (DailySummary, error) {
	if day.IsZero() {
		day = s.now()
	}
	from := s.numbers.Day(day)
	to := from.AddDate(0, 0, 1)
	totals, err := s.repo.Totals(ctx, from, to, userID)
	if err != nil {
		return DailySummary{}, fmt.Errorf("daily totals: %w", err)
	}
	return DailySummary{Date: from.Format("2006-01-02"), UserID: userID, Totals: totals}, nil
}

// SellerReport totals a seller's COMPLETED sales in [from, to) with the top
// products by revenue.
func (s *Service) SellerReport(ctx context.Context, userID uuid.UUID, from, to time.Time) (SellerReport, error) {
	if userID == uuid.Nil {
		return SellerReport{}, fmt.Errorf("%w: seller required", shared.ErrValidation)
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = s.numbers.Day(to).AddDate(0, -1, 0)
	}
	if !from.Before(to) {
		return SellerReport{}, fmt.Errorf("%w: from must be before to", shared.ErrValidation)
	}
	uid := userID
	totals, err := s.repo.Totals(ctx, from, to, &uid)
	if err != nil {
		return SellerReport{}, fmt.Errorf("seller totals: %w", err)
	}
	top, err := s.repo.TopProducts(ctx, userID, from, to, TopProductsLimit)
	if err != nil {
		return SellerReport{}, fmt.Errorf("top products: %w", err)
	}
	if top == nil {
		top = []ProductSales{}
	}
	return SellerReport{UserID: userID, From: from, To: to, TopProducts: top, Totals: totals}, nil
}
