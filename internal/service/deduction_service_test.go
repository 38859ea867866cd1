package service

import (
	"context"
	"sync"
	"testing"

	"bomcore/internal/dto"
	"bomcore/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(items *stubItemRepo, edges *stubBOMRepo, deductions *stubDeductionRepo, allowNegative bool) DeductionService {
	return newTestEngineWithDedup(items, edges, deductions, allowNegative, nil)
}

func newTestEngineWithDedup(items *stubItemRepo, edges *stubBOMRepo, deductions *stubDeductionRepo, allowNegative bool, dedup DedupStore) DeductionService {
	return NewDeductionService(items, deductions,
		[]ResolverStrategy{NewShallowResolver(edges), NewDeepResolver(edges, 10)},
		dedup,
		DeductionConfig{
			DefaultStrategy:    "deep",
			AllowNegativeStock: allowNegative,
			MaxRetries:         3,
		})
}

func event(txID string, itemID uuid.UUID, qty int64) dto.ProductionEventRequest {
	return dto.ProductionEventRequest{
		TransactionID: txID,
		ItemID:        itemID.String(),
		Quantity:      decimal.NewFromInt(qty),
	}
}

func TestHandleProductionEvent_DeepDeductsLeafOnly(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 50)
	c := seedItem(items, "C", 100)
	seedEdge(edges, a.ID, b.ID, 3, 1)
	seedEdge(edges, b.ID, c.ID, 2, 2)

	engine := newTestEngine(items, edges, deductions, true)
	resp, err := engine.HandleProductionEvent(context.Background(), event("tx-1", a.ID, 5))
	require.NoError(t, err)

	assert.Equal(t, model.TxStateCommitted, resp.State)
	assert.False(t, resp.Replayed)
	require.Len(t, resp.Deductions, 1)
	assert.True(t, resp.Deductions[0].Deducted.Equal(decimal.NewFromInt(30)))
	assert.True(t, items.stock(c.ID).Equal(decimal.NewFromInt(70)))
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(50)), "intermediate stock untouched")

	trail, err := engine.GetAuditTrail(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	entry := trail[0]
	assert.Equal(t, b.ID, entry.ParentItemID)
	assert.Equal(t, c.ID, entry.ChildItemID)
	assert.Equal(t, 2, entry.BOMLevel)
	assert.True(t, entry.QuantityRequired.Equal(decimal.NewFromInt(2)))
	assert.True(t, entry.ParentQuantity.Equal(decimal.NewFromInt(15)))
	assert.True(t, entry.DeductedQuantity.Equal(decimal.NewFromInt(30)))
	assert.True(t, entry.StockBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, entry.StockAfter.Equal(decimal.NewFromInt(70)))
}

func TestHandleProductionEvent_ShallowStrategy(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 50)
	c := seedItem(items, "C", 100)
	seedEdge(edges, a.ID, b.ID, 3, 1)
	seedEdge(edges, b.ID, c.ID, 2, 2)

	engine := newTestEngine(items, edges, deductions, true)
	req := event("tx-shallow", a.ID, 5)
	req.Strategy = "shallow"
	_, err := engine.HandleProductionEvent(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(35)))
	assert.True(t, items.stock(c.ID).Equal(decimal.NewFromInt(100)), "grandchild untouched")
}

// Re-delivering a committed transaction id must be a stock no-op that returns
// the original outcome.
func TestHandleProductionEvent_IdempotentReplay(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 100)
	seedEdge(edges, a.ID, b.ID, 10, 1)

	engine := newTestEngine(items, edges, deductions, true)
	first, err := engine.HandleProductionEvent(context.Background(), event("tx-dup", a.ID, 2))
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(80)))

	second, err := engine.HandleProductionEvent(context.Background(), event("tx-dup", a.ID, 2))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(80)), "stock applied exactly once")
	require.Len(t, second.Deductions, 1)
	assert.True(t, second.Deductions[0].Deducted.Equal(decimal.NewFromInt(20)))
}

// A re-delivered id the dedup store has already seen replays straight from
// the stored outcome; the insert against the unique constraint is skipped.
func TestHandleProductionEvent_PrecheckShortCircuitsRedelivery(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	dedup := newStubDedupStore()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 100)
	seedEdge(edges, a.ID, b.ID, 10, 1)

	engine := newTestEngineWithDedup(items, edges, deductions, true, dedup)
	first, err := engine.HandleProductionEvent(context.Background(), event("tx-pre", a.ID, 2))
	require.NoError(t, err)
	require.False(t, first.Replayed)
	require.Equal(t, 1, deductions.createAttempts())

	second, err := engine.HandleProductionEvent(context.Background(), event("tx-pre", a.ID, 2))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, 1, deductions.createAttempts(), "re-delivery never reaches the insert")
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(80)))
}

// A dedup-store hit with no matching DB record (an earlier attempt died
// before its insert) must run as a fresh delivery, not error out.
func TestHandleProductionEvent_PrecheckWithoutRecordRunsFresh(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	dedup := newStubDedupStore()
	dedup.keys["dedup:tx:tx-ghost"] = true
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 100)
	seedEdge(edges, a.ID, b.ID, 10, 1)

	engine := newTestEngineWithDedup(items, edges, deductions, true, dedup)
	resp, err := engine.HandleProductionEvent(context.Background(), event("tx-ghost", a.ID, 2))
	require.NoError(t, err)
	assert.False(t, resp.Replayed)
	assert.Equal(t, model.TxStateCommitted, resp.State)
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(80)))
}

func TestHandleProductionEvent_RejectsNonPositiveQuantity(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)

	engine := newTestEngine(items, edges, deductions, true)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-zero", a.ID, 0))
	assert.ErrorIs(t, err, ErrNonPositiveQuantity)

	// Rejected before any side effect: no transaction record exists.
	_, err = deductions.FindTransaction(context.Background(), "tx-zero")
	assert.Error(t, err)
}

func TestHandleProductionEvent_InactiveItem(t *testing.T) {
	items := newStubItemRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	a.Active = false

	engine := newTestEngine(items, newStubBOMRepo(), deductions, true)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-inactive", a.ID, 1))
	assert.ErrorIs(t, err, ErrItemInactive)
	assert.Equal(t, 0, deductions.createAttempts(), "rejected before any side effect")
}

func TestHandleProductionEvent_UnknownItem(t *testing.T) {
	engine := newTestEngine(newStubItemRepo(), newStubBOMRepo(), newStubDeductionRepo(), true)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-missing", uuid.New(), 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleProductionEvent_PermissiveNegativeStock(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 10)
	seedEdge(edges, a.ID, b.ID, 30, 1)

	engine := newTestEngine(items, edges, deductions, true)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-neg", a.ID, 1))
	require.NoError(t, err)
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(-20)),
		"permissive mode records the shortage instead of blocking")
}

func TestHandleProductionEvent_StrictShortfall(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 10)
	seedEdge(edges, a.ID, b.ID, 30, 1)

	engine := newTestEngine(items, edges, deductions, false)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-strict", a.ID, 1))
	require.ErrorIs(t, err, ErrStockShortfall)

	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(10)), "stock unchanged")
	tx, findErr := deductions.FindTransaction(context.Background(), "tx-strict")
	require.NoError(t, findErr)
	assert.Equal(t, model.TxStateFailed, tx.State)
	assert.NotEmpty(t, tx.FailReason)

	logs, _ := deductions.ListLogs(context.Background(), "tx-strict")
	assert.Empty(t, logs, "no audit rows for a rejected event")
}

// A failed attempt does not burn the transaction identity: re-delivery runs
// the event again.
func TestHandleProductionEvent_FailedTransactionRetries(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	b := seedItem(items, "B", 10)
	seedEdge(edges, a.ID, b.ID, 30, 1)

	strict := newTestEngine(items, edges, deductions, false)
	_, err := strict.HandleProductionEvent(context.Background(), event("tx-retry", a.ID, 1))
	require.ErrorIs(t, err, ErrStockShortfall)

	// Stock arrives; the re-delivered event must now commit.
	require.NoError(t, items.SetStockTx(nil, b.ID, decimal.NewFromInt(100)))
	resp, err := strict.HandleProductionEvent(context.Background(), event("tx-retry", a.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, model.TxStateCommitted, resp.State)
	assert.True(t, items.stock(b.ID).Equal(decimal.NewFromInt(70)))
}

func TestHandleProductionEvent_InFlightRejected(t *testing.T) {
	items := newStubItemRepo()
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)

	require.NoError(t, deductions.CreateTransaction(context.Background(), &model.ProductionTransaction{
		TransactionID: "tx-inflight",
		ItemID:        a.ID,
		Quantity:      decimal.NewFromInt(1),
		Strategy:      "deep",
		State:         model.TxStateApplying,
	}))

	engine := newTestEngine(items, edges, deductions, true)
	_, err := engine.HandleProductionEvent(context.Background(), event("tx-inflight", a.ID, 1))
	assert.ErrorIs(t, err, ErrTransactionInProgress)
}

// Two concurrent events consuming the same leaf by 10 each from stock 100
// must end at 80, never 90.
func TestHandleProductionEvent_NoLostUpdates(t *testing.T) {
	items := newStubItemRepo()
	items.serialize = true
	edges := newStubBOMRepo()
	deductions := newStubDeductionRepo()
	a := seedItem(items, "A", 0)
	leaf := seedItem(items, "L", 100)
	seedEdge(edges, a.ID, leaf.ID, 10, 1)

	engine := newTestEngine(items, edges, deductions, true)

	var wg sync.WaitGroup
	for _, txID := range []string{"tx-c1", "tx-c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := engine.HandleProductionEvent(context.Background(), event(id, a.ID, 1))
			assert.NoError(t, err)
		}(txID)
	}
	wg.Wait()

	assert.True(t, items.stock(leaf.ID).Equal(decimal.NewFromInt(80)),
		"expected 80 after two serialized deductions, got %s", items.stock(leaf.ID))
}

func TestGetAuditTrail_UnknownTransaction(t *testing.T) {
	engine := newTestEngine(newStubItemRepo(), newStubBOMRepo(), newStubDeductionRepo(), true)
	_, err := engine.GetAuditTrail(context.Background(), "no-such-tx")
	assert.ErrorIs(t, err, ErrNotFound)
}
