package service

import (
	"context"
	"sync"
	"time"

	"bomcore/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory ItemRepository stub ────────────────────────────────────────────

type stubItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.Item
	// serialize makes LockForUpdateTx/SetStockTx behave like row locks:
	// LockForUpdateTx acquires, SetStockTx releases.
	serialize bool
	lockMu    sync.Mutex
}

func newStubItemRepo() *stubItemRepo {
	return &stubItemRepo{items: make(map[uuid.UUID]*model.Item)}
}

func (r *stubItemRepo) Create(_ context.Context, item *model.Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *stubItemRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *stubItemRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Item
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *stubItemRepo) LockForUpdateTx(_ *gorm.DB, id uuid.UUID) (*model.Item, error) {
	if r.serialize {
		r.lockMu.Lock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		if r.serialize {
			r.lockMu.Unlock()
		}
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *stubItemRepo) SetStockTx(_ *gorm.DB, id uuid.UUID, stock decimal.Decimal) error {
	r.mu.Lock()
	if item, ok := r.items[id]; ok {
		item.CurrentStock = stock
	}
	r.mu.Unlock()
	if r.serialize {
		r.lockMu.Unlock()
	}
	return nil
}

func (r *stubItemRepo) DB() *gorm.DB { return nil }

func (r *stubItemRepo) stock(id uuid.UUID) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].CurrentStock
}

// ── In-memory BOMRepository stub ─────────────────────────────────────────────

type stubBOMRepo struct {
	mu    sync.Mutex
	edges []*model.BOMEdge
}

func newStubBOMRepo() *stubBOMRepo { return &stubBOMRepo{} }

func (r *stubBOMRepo) Upsert(_ context.Context, edge *model.BOMEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	} else {
		for i, e := range r.edges {
			if e.ID == edge.ID {
				r.edges[i] = edge
				return nil
			}
		}
	}
	r.edges = append(r.edges, edge)
	return nil
}

func (r *stubBOMRepo) FindByID(_ context.Context, id uuid.UUID) (*model.BOMEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.edges {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBOMRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.edges {
		if e.ID == id && e.Active {
			e.Active = false
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubBOMRepo) QueryChildren(_ context.Context, parentItemID uuid.UUID, customerID *uuid.UUID) ([]model.BOMEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.BOMEdge
	for _, e := range r.edges {
		if !e.Active || e.ParentItemID != parentItemID {
			continue
		}
		if customerID != nil && e.CustomerID != nil && *e.CustomerID != *customerID {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *stubBOMRepo) CreateBatchTx(_ *gorm.DB, edges []*model.BOMEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range edges {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		r.edges = append(r.edges, e)
	}
	return nil
}

func (r *stubBOMRepo) DB() *gorm.DB { return nil }

// ── In-memory DeductionRepository stub ───────────────────────────────────────

type stubDeductionRepo struct {
	mu      sync.Mutex
	txs     map[string]*model.ProductionTransaction
	logs    []*model.DeductionLog
	creates int
}

func newStubDeductionRepo() *stubDeductionRepo {
	return &stubDeductionRepo{txs: make(map[string]*model.ProductionTransaction)}
}

func (r *stubDeductionRepo) CreateTransaction(_ context.Context, tx *model.ProductionTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if _, ok := r.txs[tx.TransactionID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	cp := *tx
	r.txs[tx.TransactionID] = &cp
	return nil
}

func (r *stubDeductionRepo) FindTransaction(_ context.Context, transactionID string) (*model.ProductionTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[transactionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *stubDeductionRepo) setState(id uuid.UUID, state string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ID != id {
			continue
		}
		tx.State = state
		if v, ok := fields["fail_reason"].(string); ok {
			tx.FailReason = v
		}
		if v, ok := fields["truncated_nodes"].(int); ok {
			tx.TruncatedNodes = v
		}
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (r *stubDeductionRepo) UpdateTransactionState(_ context.Context, id uuid.UUID, state string, fields map[string]interface{}) error {
	return r.setState(id, state, fields)
}

func (r *stubDeductionRepo) SetTransactionStateTx(_ *gorm.DB, id uuid.UUID, state string, fields map[string]interface{}) error {
	return r.setState(id, state, fields)
}

func (r *stubDeductionRepo) AppendLogsTx(_ *gorm.DB, logs []*model.DeductionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range logs {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		cp := *l
		r.logs = append(r.logs, &cp)
	}
	return nil
}

func (r *stubDeductionRepo) ListLogs(_ context.Context, transactionID string) ([]model.DeductionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DeductionLog
	for _, l := range r.logs {
		if l.TransactionID == transactionID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *stubDeductionRepo) DB() *gorm.DB { return nil }

func (r *stubDeductionRepo) createAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// ── In-memory dedup store stub ───────────────────────────────────────────────

// stubDedupStore mimics the SETNX contract: first write of a key reports
// true, every later write reports false.
type stubDedupStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newStubDedupStore() *stubDedupStore {
	return &stubDedupStore{keys: make(map[string]bool)}
}

func (s *stubDedupStore) SetNX(_ context.Context, key string, _ interface{}, _ time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	s.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

// ── In-memory CustomerRepository stub ────────────────────────────────────────

type stubCustomerRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*model.Customer
	lookups   int
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{customers: make(map[uuid.UUID]*model.Customer)}
}

func (r *stubCustomerRepo) Create(_ context.Context, c *model.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[c.ID] = c
	return nil
}

func (r *stubCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *stubCustomerRepo) FindByCode(_ context.Context, code string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, c := range r.customers {
		if c.Code == code && c.Active {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCustomerRepo) ListActive(_ context.Context) ([]model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Customer
	for _, c := range r.customers {
		if c.Active {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ── Fixture helpers ──────────────────────────────────────────────────────────

func seedItem(repo *stubItemRepo, code string, stock int64) *model.Item {
	item := &model.Item{
		ID:           uuid.New(),
		Code:         code,
		Name:         code,
		Kind:         model.ItemKindRaw,
		CurrentStock: decimal.NewFromInt(stock),
		Active:       true,
	}
	_ = repo.Create(context.Background(), item)
	return item
}

func seedEdge(repo *stubBOMRepo, parent, child uuid.UUID, qty int64, level int) *model.BOMEdge {
	edge := &model.BOMEdge{
		ID:               uuid.New(),
		ParentItemID:     parent,
		ChildItemID:      child,
		QuantityRequired: decimal.NewFromInt(qty),
		LevelNo:          level,
		Active:           true,
	}
	_ = repo.Upsert(context.Background(), edge)
	return edge
}
