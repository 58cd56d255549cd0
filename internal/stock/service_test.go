package stock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type levelKey struct {
	warehouse uuid.UUID
	product   uuid.UUID
}

// memoryRepo serialises transactions and commits a copy of its state only
// when the callback succeeds.
type memoryRepo struct {
	mu        sync.Mutex
	levels    map[levelKey]Level
	movements []Movement
	products  map[uuid.UUID]bool
	failSave  error
}

type memoryTx struct {
	levels    map[levelKey]Level
	movements []Movement
	products  map[uuid.UUID]bool
	failSave  error
}

func newMemoryRepo(products ...uuid.UUID) *memoryRepo {
	known := make(map[uuid.UUID]bool, len(products))
	for _, id := range products {
		known[id] = true
	}
	return &memoryRepo{levels: make(map[levelKey]Level), products: known}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{levels: make(map[levelKey]Level, len(r.levels)), products: r.products, failSave: r.failSave}
	for k, v := range r.levels {
		tx.levels[k] = v
	}
	tx.movements = append([]Movement(nil), r.movements...)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.levels = tx.levels
	r.movements = tx.movements
	return nil
}

func (r *memoryRepo) ListStock(ctx context.Context, warehouseID uuid.UUID, search string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Item
	for k, lvl := range r.levels {
		if k.warehouse == warehouseID {
			out = append(out, Item{ProductID: k.product, Quantity: lvl.Quantity})
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MovementView
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].WarehouseID == filter.WarehouseID {
			out = append(out, MovementView{Movement: r.movements[i]})
		}
	}
	total := len(out)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memoryRepo) Summary(ctx context.Context, warehouseID uuid.UUID) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := Summary{WarehouseID: warehouseID}
	for k, lvl := range r.levels {
		if k.warehouse == warehouseID {
			sum.TotalProducts++
			sum.TotalUnits += lvl.Quantity
		}
	}
	return sum, nil
}

func (r *memoryRepo) quantity(warehouseID, productID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[levelKey{warehouseID, productID}].Quantity
}

func (r *memoryRepo) movementCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.movements)
}

func (tx *memoryTx) LockStockLevel(ctx context.Context, warehouseID, productID uuid.UUID) (Level, error) {
	if !tx.products[productID] {
		return Level{}, fmt.Errorf("product %s: %w", productID, shared.ErrNotFound)
	}
	if lvl, ok := tx.levels[levelKey{warehouseID, productID}]; ok {
		return lvl, nil
	}
	return Level{WarehouseID: warehouseID, ProductID: productID}, nil
}

func (tx *memoryTx) SaveStockLevel(ctx context.Context, level Level) error {
	if tx.failSave != nil {
		return tx.failSave
	}
	tx.levels[levelKey{level.WarehouseID, level.ProductID}] = level
	return nil
}

func (tx *memoryTx) AppendMovement(ctx context.Context, mv Movement) error {
	tx.movements = append(tx.movements, mv)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) ObserveLedger(ledger, operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.outcomes[ledger+":"+operation+":"+result]++
}

func TestEntryThenExitTracksQuantity(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil, nil, nil)

	res, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 10, Reason: "opening", UserID: user})
	require.NoError(t, err)
	require.Equal(t, 0, res.PreviousQuantity)
	require.Equal(t, 10, res.NewQuantity)

	res, err = svc.Exit(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 3, UserID: user})
	require.NoError(t, err)
	require.Equal(t, 10, res.PreviousQuantity)
	require.Equal(t, 7, res.NewQuantity)
	require.Equal(t, -3, res.Delta)

	require.Equal(t, 7, repo.quantity(wh, product))
	require.Len(t, repo.movements, 2)
	require.Equal(t, KindEntry, repo.movements[0].Kind)
	require.Equal(t, KindExit, repo.movements[1].Kind)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "stock:EXIT", audit.logs[1].Action)
}

func TestNegativeQuantityIsRejected(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: -5, UserID: user})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Exit(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: -2, UserID: user})
	require.ErrorIs(t, err, shared.ErrValidation)

	summary, err := svc.Summary(ctx, wh)
	require.NoError(t, err)
	require.Equal(t, 0, summary.TotalUnits)
}

func TestInsufficientStockLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	metrics := &countingRecorder{}
	svc := NewService(repo, nil, nil, metrics, nil)

	_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 2, UserID: user})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustInput{WarehouseID: wh, ProductID: product, Delta: -5, Reason: "count", UserID: user})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, 2, insufficient.Available)
	require.Equal(t, 5, insufficient.Requested)
	require.Equal(t, 2, insufficient.ProblemFields()["available"])

	require.Equal(t, 2, repo.quantity(wh, product))
	require.Equal(t, 1, repo.movementCount())
	require.Equal(t, 1, metrics.outcomes["stock:adjust:error"])
	require.Equal(t, 1, metrics.outcomes["stock:entry:ok"])
}

func TestValidationRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	svc := NewService(newMemoryRepo(product), nil, nil, nil, nil)

	cases := map[string]func() error{
		"zero entry": func() error {
			_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, UserID: user})
			return err
		},
		"zero exit": func() error {
			_, err := svc.Exit(ctx, MoveInput{WarehouseID: wh, ProductID: product, UserID: user})
			return err
		},
		"zero adjustment": func() error {
			_, err := svc.Adjust(ctx, AdjustInput{WarehouseID: wh, ProductID: product, UserID: user})
			return err
		},
		"missing user": func() error {
			_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 1})
			return err
		},
		"missing warehouse": func() error {
			_, err := svc.Entry(ctx, MoveInput{ProductID: product, Quantity: 1, UserID: user})
			return err
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, run(), shared.ErrValidation)
		})
	}
}

func TestPostRejectsUnknownKind(t *testing.T) {
	repo := newMemoryRepo()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := Post(ctx, tx, Adjustment{WarehouseID: uuid.New(), ProductID: uuid.New(), UserID: uuid.New(), Delta: 1, Kind: "GIFT"})
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnknownProductIsNotFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	_, err := svc.Entry(context.Background(), MoveInput{WarehouseID: uuid.New(), ProductID: uuid.New(), Quantity: 1, UserID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	repo.failSave = errors.New("disk full")
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 4, UserID: user})
	require.Error(t, err)
	require.Equal(t, 0, repo.quantity(wh, product))
	require.Zero(t, repo.movementCount())
}

func TestRandomSequencesKeepLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	svc := NewService(repo, nil, nil, nil, nil)
	rng := rand.New(rand.NewSource(42))

	expected := 0
	for i := 0; i < 500; i++ {
		delta := rng.Intn(21) - 10
		if delta == 0 {
			continue
		}
		_, err := svc.Adjust(ctx, AdjustInput{WarehouseID: wh, ProductID: product, Delta: delta, UserID: user})
		if expected+delta < 0 {
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			continue
		}
		require.NoError(t, err)
		expected += delta
	}

	require.Equal(t, expected, repo.quantity(wh, product))
	sum := 0
	prev := 0
	for _, mv := range repo.movements {
		require.Equal(t, prev, mv.PreviousQuantity)
		require.Equal(t, mv.PreviousQuantity+mv.Delta, mv.NewQuantity)
		require.GreaterOrEqual(t, mv.NewQuantity, 0)
		sum += mv.Delta
		prev = mv.NewQuantity
	}
	require.Equal(t, expected, sum)
}

func TestConcurrentExitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	svc := NewService(repo, nil, nil, nil, nil)
	_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 5, UserID: user})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Exit(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 1, UserID: user})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	require.Equal(t, 5, accepted)
	require.Equal(t, 0, repo.quantity(wh, product))
}

func TestMovementsPaginates(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	svc := NewService(repo, nil, nil, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: i + 1, UserID: user})
		require.NoError(t, err)
	}

	page, err := svc.Movements(ctx, MovementFilter{WarehouseID: wh, Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 3, page.Pagination.Total)
	require.Equal(t, 3, page.Items[0].Delta)

	empty, err := svc.Movements(ctx, MovementFilter{WarehouseID: uuid.New()})
	require.NoError(t, err)
	require.NotNil(t, empty.Items)
	require.Empty(t, empty.Items)
}

func TestSummaryWithoutCache(t *testing.T) {
	ctx := context.Background()
	wh, product, user := uuid.New(), uuid.New(), uuid.New()
	repo := newMemoryRepo(product)
	svc := NewService(repo, nil, nil, nil, nil)
	_, err := svc.Entry(ctx, MoveInput{WarehouseID: wh, ProductID: product, Quantity: 9, UserID: user})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, wh)
	require.NoError(t, err)
	require.Equal(t, 1, sum.TotalProducts)
	require.Equal(t, 9, sum.TotalUnits)
}
