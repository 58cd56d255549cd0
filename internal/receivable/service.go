package receivable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/notify"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// CacheNamespace versions cached receivable read models.
const CacheNamespace = "receivable"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOpen(ctx context.Context) ([]AccountView, error)
	ListOverdue(ctx context.Context, dueAfter, dueBefore time.Time) ([]AccountView, error)
	List(ctx context.Context, filter ListFilter, now time.Time) ([]AccountView, int, error)
	Get(ctx context.Context, accountID uuid.UUID) (AccountView, error)
	ListPayments(ctx context.Context, accountID uuid.UUID) ([]Payment, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]AccountView, error)
}

// CreditReader reads a customer's credit position.
type CreditReader interface {
	Available(ctx context.Context, customerID uuid.UUID) (credit.Snapshot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReadCache caches aging reports between payments.
type ReadCache interface {
	BuildKey(ctx context.Context, namespace string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, namespace string) error
}

// Recorder counts ledger outcomes.
type Recorder interface {
	ObserveLedger(ledger, operation string, err error)
}

// Service exposes receivables and payments.
type Service struct {
	repo    RepositoryPort
	credits CreditReader
	audit   AuditPort
	events  notify.Publisher
	cache   ReadCache
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. Everything after credits is optional.
func NewService(repo RepositoryPort, credits CreditReader, audit AuditPort, events notify.Publisher, cache ReadCache, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{
		repo:    repo,
		credits: credits,
		audit:   audit,
		events:  events,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterPayment applies a payment and lowers the customer's debt in one
// transaction.
func (s *Service) RegisterPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	at := s.now()
	var res PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		res, err = ApplyPayment(ctx, tx, in, at)
		return err
	})
	if s.metrics != nil {
		s.metrics.ObserveLedger("receivable", "payment", err)
	}
	if err != nil {
		return PaymentResult{}, err
	}
	s.afterPayment(ctx, res)
	return res, nil
}

func (s *Service) afterPayment(ctx context.Context, res PaymentResult) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, CacheNamespace); err != nil {
			s.logger.Warn("receivable cache bump", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  res.Payment.ReceivedBy,
			Action:   "receivable:payment",
			Entity:   "accounts_receivable",
			EntityID: res.Account.ID.String(),
			Meta: map[string]any{
				"payment_id":  res.Payment.ID.String(),
				"amount":      res.Payment.Amount.StringFixed(2),
				"new_balance": res.NewBalance.StringFixed(2),
				"new_status":  string(res.NewStatus),
			},
		})
		if err != nil {
			s.logger.Warn("receivable audit", slog.Any("error", err))
		}
	}
	view, err := s.repo.Get(ctx, res.Account.ID)
	if err != nil {
		s.logger.Warn("receivable lookup for notification", slog.Any("error", err))
	}
	ev := notify.PaymentReceived(res.Account.ID, view.CustomerName, view.SaleNumber, res.Payment.Amount, res.NewBalance, string(res.NewStatus), res.Payment.CreatedAt)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish payment event", slog.Any("error", err))
	}
}

// Aging buckets every PENDING or PARTIAL account by days overdue as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now().Truncate(time.Minute)
	}
	asOf = asOf.UTC()
	loader := func(ctx context.Context) (any, error) {
		accounts, err := s.repo.ListOpen(ctx)
		if err != nil {
			return nil, err
		}
		return BuildAging(accounts, asOf), nil
	}
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return AgingReport{}, err
		}
		return value.(AgingReport), nil
	}
	key, err := s.cache.BuildKey(ctx, CacheNamespace, "aging", asOf.Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("receivable cache key", slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return AgingReport{}, err
		}
		return value.(AgingReport), nil
	}
	var report AgingReport
	if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
		return AgingReport{}, err
	}
	return report, nil
}

// List pages through receivables, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (AccountPage, error) {
	switch filter.Status {
	case "", StatusPending, StatusPartial, StatusPaid, StatusOverdue:
	default:
		return AccountPage{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage, shared.DefaultPerPage)
	now := s.now()
	items, total, err := s.repo.List(ctx, filter, now)
	if err != nil {
		return AccountPage{}, fmt.Errorf("list receivables: %w", err)
	}
	if items == nil {
		items = []AccountView{}
	}
	for i := range items {
		decorate(&items[i], now)
	}
	return AccountPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Get returns an account with its payments.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (AccountDetail, error) {
	var (
		view     AccountView
		payments []Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view, err = s.repo.Get(gctx, accountID)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.ListPayments(gctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return AccountDetail{}, err
	}
	decorate(&view, s.now())
	if payments == nil {
		payments = []Payment{}
	}
	return AccountDetail{AccountView: view, Payments: payments}, nil
}

// Statement returns a customer's credit snapshot and receivables.
func (s *Service) Statement(ctx context.Context, customerID uuid.UUID) (Statement, error) {
	if customerID == uuid.Nil {
		return Statement{}, fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	var st Statement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st.Credit, err = s.credits.Available(gctx, customerID)
		return err
	})
	g.Go(func() error {
		var err error
		st.Accounts, err = s.repo.ListByCustomer(gctx, customerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}
	now := s.now()
	st.TotalBalance = decimal.Zero
	if st.Accounts == nil {
		st.Accounts = []AccountView{}
	}
	for i := range st.Accounts {
		decorate(&st.Accounts[i], now)
		st.TotalBalance = st.TotalBalance.Add(st.Accounts[i].Balance)
	}
	return st, nil
}

// NotifyOverdue publishes ACCOUNT_OVERDUE for unpaid accounts that fell due
// within the window ending now. It returns how many events were published.
func (s *Service) NotifyOverdue(ctx context.Context, window time.Duration) (int, error) {
	now := s.now()
	accounts, err := s.repo.ListOverdue(ctx, now.Add(-window), now)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}
	published := 0
	for _, acc := range accounts {
		days := DaysOverdue(acc.DueDate, now)
		ev := notify.AccountOverdue(acc.ID, acc.CustomerName, acc.SaleNumber, acc.Balance, days, now)
		if err := s.events.Publish(ctx, ev); err != nil {
			return published, fmt.Errorf("publish overdue %s: %w", acc.ID, err)
		}
		published++
	}
	return published, nil
}

func decorate(v *AccountView, now time.Time) {
	v.EffectiveStatus = v.Account.EffectiveStatus(now)
	if v.Status != StatusPaid {
		v.DaysOverdue = DaysOverdue(v.DueDate, now)
	}
}
