package credit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type memoryStore struct {
	mu        sync.Mutex
	customers map[uuid.UUID]Customer
}

func newMemoryStore(customers ...Customer) *memoryStore {
	m := &memoryStore{customers: make(map[uuid.UUID]Customer)}
	for _, c := range customers {
		m.customers[c.ID] = c
	}
	return m
}

func (m *memoryStore) GetCustomerCredit(ctx context.Context, id uuid.UUID) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

// withTx serialises callbacks and commits only on success.
func (m *memoryStore) withTx(ctx context.Context, fn func(TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{customers: make(map[uuid.UUID]Customer, len(m.customers))}
	for k, v := range m.customers {
		tx.customers[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.customers = tx.customers
	return nil
}

type memoryTx struct {
	customers map[uuid.UUID]Customer
}

func (tx *memoryTx) LockCustomerCredit(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, ok := tx.customers[id]
	if !ok {
		return Customer{}, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (tx *memoryTx) SaveCustomerDebt(ctx context.Context, id uuid.UUID, debt decimal.Decimal) error {
	c := tx.customers[id]
	c.CurrentDebt = debt
	tx.customers[id] = c
	return nil
}

func customer(limit, debt int64) Customer {
	return Customer{ID: uuid.New(), Name: "Toko Maju", CreditLimit: decimal.NewFromInt(limit), CurrentDebt: decimal.NewFromInt(debt), Active: true}
}

func TestAvailableCredit(t *testing.T) {
	c := customer(1000, 800)
	svc := NewService(newMemoryStore(c))

	snap, err := svc.Available(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, snap.Available.Equal(decimal.NewFromInt(200)))

	_, err = svc.Available(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAuthorizeWithinLimit(t *testing.T) {
	c := customer(1000, 800)
	store := newMemoryStore(c)
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		_, err := Authorize(context.Background(), tx, c.ID, decimal.NewFromInt(150))
		if err != nil {
			return err
		}
		snap, err := Raise(context.Background(), tx, c.ID, decimal.NewFromInt(150))
		require.True(t, snap.Debt.Equal(decimal.NewFromInt(950)))
		return err
	})
	require.NoError(t, err)
	require.True(t, store.customers[c.ID].CurrentDebt.Equal(decimal.NewFromInt(950)))
}

func TestAuthorizeExceeded(t *testing.T) {
	c := customer(1000, 800)
	store := newMemoryStore(c)
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		_, err := Authorize(context.Background(), tx, c.ID, decimal.NewFromInt(250))
		return err
	})
	require.ErrorIs(t, err, shared.ErrCreditExceeded)
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	require.Equal(t, "200.00", exceeded.ProblemFields()["available"])
	require.Equal(t, "250.00", exceeded.ProblemFields()["requested"])
	require.True(t, store.customers[c.ID].CurrentDebt.Equal(decimal.NewFromInt(800)))
}

func TestAuthorizeExactAvailableIsAccepted(t *testing.T) {
	c := customer(1000, 800)
	store := newMemoryStore(c)
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		_, err := Authorize(context.Background(), tx, c.ID, decimal.NewFromInt(200))
		return err
	})
	require.NoError(t, err)
}

func TestAuthorizeInactiveCustomer(t *testing.T) {
	c := customer(1000, 0)
	c.Active = false
	store := newMemoryStore(c)
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		_, err := Authorize(context.Background(), tx, c.ID, decimal.NewFromInt(1))
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLowerClampsAtZero(t *testing.T) {
	c := customer(1000, 100)
	store := newMemoryStore(c)
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		snap, err := Lower(context.Background(), tx, c.ID, decimal.NewFromInt(300))
		require.True(t, snap.Debt.IsZero())
		return err
	})
	require.NoError(t, err)
	require.True(t, store.customers[c.ID].CurrentDebt.IsZero())
}

func TestNegativeAmountsRejected(t *testing.T) {
	c := customer(1000, 100)
	store := newMemoryStore(c)
	for name, op := range map[string]func(context.Context, TxRepository, uuid.UUID, decimal.Decimal) (Snapshot, error){
		"raise": Raise,
		"lower": Lower,
	} {
		t.Run(name, func(t *testing.T) {
			err := store.withTx(context.Background(), func(tx TxRepository) error {
				_, err := op(context.Background(), tx, c.ID, decimal.NewFromInt(-1))
				return err
			})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestUnknownCustomer(t *testing.T) {
	store := newMemoryStore()
	err := store.withTx(context.Background(), func(tx TxRepository) error {
		_, err := Raise(context.Background(), tx, uuid.New(), decimal.NewFromInt(1))
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
