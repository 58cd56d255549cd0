package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/receivable"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/stock"
)

type levelKey struct {
	warehouse uuid.UUID
	product   uuid.UUID
}

type memoryState struct {
	levels    map[levelKey]int
	movements []stock.Movement
	customers map[uuid.UUID]credit.Customer
	accounts  map[uuid.UUID]receivable.Account
	payments  []receivable.Payment
	sales     map[uuid.UUID]Sale
	items     map[uuid.UUID][]Item
	counters  map[string]int
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		levels:    make(map[levelKey]int, len(s.levels)),
		movements: append([]stock.Movement(nil), s.movements...),
		customers: make(map[uuid.UUID]credit.Customer, len(s.customers)),
		accounts:  make(map[uuid.UUID]receivable.Account, len(s.accounts)),
		payments:  append([]receivable.Payment(nil), s.payments...),
		sales:     make(map[uuid.UUID]Sale, len(s.sales)),
		items:     make(map[uuid.UUID][]Item, len(s.items)),
		counters:  make(map[string]int, len(s.counters)),
	}
	for k, v := range s.levels {
		out.levels[k] = v
	}
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.sales {
		out.sales[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	return out
}

// memoryStore serialises transactions and commits a copy of the state only
// when the callback succeeds, like a database transaction would.
type memoryStore struct {
	mu         sync.Mutex
	state      memoryState
	products   map[uuid.UUID]Product
	warehouses map[uuid.UUID]bool
	failAppend error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		state: memoryState{
			levels:    make(map[levelKey]int),
			customers: make(map[uuid.UUID]credit.Customer),
			accounts:  make(map[uuid.UUID]receivable.Account),
			sales:     make(map[uuid.UUID]Sale),
			items:     make(map[uuid.UUID][]Item),
			counters:  make(map[string]int),
		},
		products:   make(map[uuid.UUID]Product),
		warehouses: make(map[uuid.UUID]bool),
	}
}

func (m *memoryStore) addWarehouse() uuid.UUID {
	id := uuid.New()
	m.warehouses[id] = true
	return id
}

func (m *memoryStore) addProduct(name string, minStock int) Product {
	p := Product{ID: uuid.New(), Name: name, SKU: "SKU-" + name, MinStock: minStock, Active: true}
	m.products[p.ID] = p
	return p
}

func (m *memoryStore) addCustomer(limit, debt string) credit.Customer {
	c := credit.Customer{
		ID:          uuid.New(),
		Name:        "Customer " + limit,
		CreditLimit: decimal.RequireFromString(limit),
		CurrentDebt: decimal.RequireFromString(debt),
		Active:      true,
	}
	m.state.customers[c.ID] = c
	return c
}

func (m *memoryStore) setStock(warehouseID, productID uuid.UUID, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.levels[levelKey{warehouseID, productID}] = qty
}

func (m *memoryStore) stockOf(warehouseID, productID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.levels[levelKey{warehouseID, productID}]
}

func (m *memoryStore) debtOf(customerID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.customers[customerID].CurrentDebt
}

func (m *memoryStore) snapshot() memoryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memoryStore) accountForSale(saleID uuid.UUID) (receivable.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.state.accounts {
		if a.SaleID == saleID {
			return a, true
		}
	}
	return receivable.Account{}, false
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memoryStore) Get(ctx context.Context, saleID uuid.UUID) (Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.sales[saleID]
	if !ok {
		return Sale{}, fmt.Errorf("sale %s: %w", saleID, shared.ErrNotFound)
	}
	s.Items = append([]Item(nil), m.state.items[saleID]...)
	return s, nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sale
	for _, s := range m.state.sales {
		if filter.PaymentType != "" && s.PaymentType != filter.PaymentType {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.UserID != nil && s.UserID != *filter.UserID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, len(out), nil
}

func (m *memoryStore) Totals(ctx context.Context, from, to time.Time, userID *uuid.UUID) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Totals{Total: decimal.Zero, CashTotal: decimal.Zero, CreditTotal: decimal.Zero}
	for _, s := range m.state.sales {
		if s.Status != StatusCompleted || s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
			continue
		}
		if userID != nil && s.UserID != *userID {
			continue
		}
		t.Count++
		t.Total = t.Total.Add(s.Total)
		if s.PaymentType == PaymentCash {
			t.CashTotal = t.CashTotal.Add(s.Total)
		} else {
			t.CreditTotal = t.CreditTotal.Add(s.Total)
		}
	}
	return t, nil
}

func (m *memoryStore) TopProducts(ctx context.Context, userID uuid.UUID, from, to time.Time, limit int) ([]ProductSales, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := make(map[uuid.UUID]*ProductSales)
	for id, s := range m.state.sales {
		if s.Status != StatusCompleted || s.UserID != userID || s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
			continue
		}
		for _, it := range m.state.items[id] {
			ps, ok := agg[it.ProductID]
			if !ok {
				p := m.products[it.ProductID]
				ps = &ProductSales{ProductID: p.ID, Name: p.Name, SKU: p.SKU, Revenue: decimal.Zero}
				agg[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(it.Subtotal)
		}
	}
	out := make([]ProductSales, 0, len(agg))
	for _, ps := range agg {
		out = append(out, *ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryTx struct {
	store *memoryStore
	state memoryState
}

func (tx *memoryTx) LockStockLevel(ctx context.Context, warehouseID, productID uuid.UUID) (stock.Level, error) {
	if !tx.store.warehouses[warehouseID] {
		return stock.Level{}, fmt.Errorf("warehouse %s: %w", warehouseID, shared.ErrNotFound)
	}
	if _, ok := tx.store.products[productID]; !ok {
		return stock.Level{}, fmt.Errorf("product %s: %w", productID, shared.ErrNotFound)
	}
	return stock.Level{WarehouseID: warehouseID, ProductID: productID, Quantity: tx.state.levels[levelKey{warehouseID, productID}]}, nil
}

func (tx *memoryTx) SaveStockLevel(ctx context.Context, level stock.Level) error {
	tx.state.levels[levelKey{level.WarehouseID, level.ProductID}] = level.Quantity
	return nil
}

func (tx *memoryTx) AppendMovement(ctx context.Context, mv stock.Movement) error {
	if tx.store.failAppend != nil {
		return tx.store.failAppend
	}
	tx.state.movements = append(tx.state.movements, mv)
	return nil
}

func (tx *memoryTx) LockCustomerCredit(ctx context.Context, id uuid.UUID) (credit.Customer, error) {
	c, ok := tx.state.customers[id]
	if !ok {
		return credit.Customer{}, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (tx *memoryTx) SaveCustomerDebt(ctx context.Context, id uuid.UUID, debt decimal.Decimal) error {
	c := tx.state.customers[id]
	c.CurrentDebt = debt
	tx.state.customers[id] = c
	return nil
}

func (tx *memoryTx) InsertReceivable(ctx context.Context, a receivable.Account) error {
	for _, existing := range tx.state.accounts {
		if existing.SaleID == a.SaleID {
			return fmt.Errorf("duplicate receivable for sale %s", a.SaleID)
		}
	}
	tx.state.accounts[a.ID] = a
	return nil
}

func (tx *memoryTx) LockReceivable(ctx context.Context, id uuid.UUID) (receivable.Account, error) {
	a, ok := tx.state.accounts[id]
	if !ok {
		return receivable.Account{}, fmt.Errorf("receivable %s: %w", id, shared.ErrNotFound)
	}
	return a, nil
}

func (tx *memoryTx) LockReceivableBySale(ctx context.Context, saleID uuid.UUID) (receivable.Account, error) {
	for _, a := range tx.state.accounts {
		if a.SaleID == saleID {
			return a, nil
		}
	}
	return receivable.Account{}, fmt.Errorf("receivable for sale %s: %w", saleID, shared.ErrNotFound)
}

func (tx *memoryTx) SaveReceivable(ctx context.Context, a receivable.Account) error {
	tx.state.accounts[a.ID] = a
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p receivable.Payment) error {
	tx.state.payments = append(tx.state.payments, p)
	return nil
}

func (tx *memoryTx) NextSaleSequence(ctx context.Context, day time.Time) (int, error) {
	key := day.Format("2006-01-02")
	tx.state.counters[key]++
	return tx.state.counters[key], nil
}

func (tx *memoryTx) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, ok := tx.store.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (tx *memoryTx) InsertSale(ctx context.Context, s Sale) error {
	if !tx.store.warehouses[s.WarehouseID] {
		return fmt.Errorf("warehouse %s: %w", s.WarehouseID, shared.ErrNotFound)
	}
	for _, existing := range tx.state.sales {
		if existing.Number == s.Number {
			return fmt.Errorf("duplicate sale number %s", s.Number)
		}
	}
	s.Items = nil
	tx.state.sales[s.ID] = s
	return nil
}

func (tx *memoryTx) InsertSaleItems(ctx context.Context, items []Item) error {
	for _, it := range items {
		tx.state.items[it.SaleID] = append(tx.state.items[it.SaleID], it)
	}
	return nil
}

func (tx *memoryTx) LockSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	s, ok := tx.state.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
	}
	s.Items = append([]Item(nil), tx.state.items[id]...)
	return s, nil
}

func (tx *memoryTx) SetSaleStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	s := tx.state.sales[id]
	s.Status = status
	s.UpdatedAt = at
	tx.state.sales[id] = s
	return nil
}
