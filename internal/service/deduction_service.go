package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bomcore/internal/dto"
	"bomcore/internal/infra"
	"bomcore/internal/model"
	"bomcore/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeductionService reacts to production-completion events: it resolves the
// BOM under the produced item and applies all stock decrements plus the audit
// trail as one atomic unit. It is the only writer of Item.current_stock and
// deduction_logs.
type DeductionService interface {
	HandleProductionEvent(ctx context.Context, req dto.ProductionEventRequest) (*dto.DeductionResponse, error)
	GetAuditTrail(ctx context.Context, transactionID string) ([]dto.DeductionLogRow, error)
}

// DeductionConfig carries the engine's policy knobs.
type DeductionConfig struct {
	// DefaultStrategy is used when an event does not name one.
	DefaultStrategy string
	// AllowNegativeStock keeps the permissive policy: shortages are recorded,
	// never blocked. False enables strict mode.
	AllowNegativeStock bool
	MaxRetries         int
	RetryBase          time.Duration
}

// DedupStore is the fast path for spotting re-delivered transaction ids.
// *redis.Client satisfies it. The store is advisory only: the DB unique
// constraint on transaction_id stays authoritative.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type deductionService struct {
	items      repository.ItemRepository
	deductions repository.DeductionRepository
	resolvers  map[string]ResolverStrategy
	rdb        DedupStore
	breaker    *infra.CircuitBreaker
	cfg        DeductionConfig
}

// NewDeductionService wires the engine. rdb may be nil (unit tests); when
// present it backs a fast duplicate-delivery pre-check behind a circuit
// breaker.
func NewDeductionService(
	items repository.ItemRepository,
	deductions repository.DeductionRepository,
	resolvers []ResolverStrategy,
	rdb DedupStore,
	cfg DeductionConfig,
) DeductionService {
	byName := make(map[string]ResolverStrategy, len(resolvers))
	for _, r := range resolvers {
		byName[r.Name()] = r
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 50 * time.Millisecond
	}
	return &deductionService{
		items:      items,
		deductions: deductions,
		resolvers:  byName,
		rdb:        rdb,
		breaker:    infra.NewCircuitBreaker(infra.DefaultCBConfig()),
		cfg:        cfg,
	}
}

func (s *deductionService) HandleProductionEvent(ctx context.Context, req dto.ProductionEventRequest) (*dto.DeductionResponse, error) {
	// Q <= 0 is rejected before any side effect.
	if !req.Quantity.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("item_id is not a valid uuid")
	}
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		return nil, err
	}
	if !item.Active {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrItemInactive)
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = s.cfg.DefaultStrategy
	}
	resolver, ok := s.resolvers[strategyName]
	if !ok {
		return nil, fmt.Errorf("unknown resolver strategy %q", strategyName)
	}

	if s.precheckDuplicate(ctx, req.TransactionID) {
		resp, err := s.handleRedelivery(ctx, req.TransactionID)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return resp, err
		}
		// The store remembers an id the DB never recorded (an earlier
		// attempt died before its insert); treat it as a fresh delivery.
	}

	producedAt := time.Now()
	if req.ProducedAt != nil {
		producedAt = *req.ProducedAt
	}
	txRec := &model.ProductionTransaction{
		TransactionID: req.TransactionID,
		ItemID:        itemID,
		Quantity:      req.Quantity,
		Strategy:      strategyName,
		State:         model.TxStateReceived,
		ProducedAt:    producedAt,
	}
	if err := s.deductions.CreateTransaction(ctx, txRec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.handleRedelivery(ctx, req.TransactionID)
		}
		return nil, err
	}

	return s.process(ctx, txRec, resolver)
}

// precheckDuplicate marks the transaction id in the dedup store and reports
// whether it was already there, so obvious re-deliveries skip straight to the
// replay path without an insert attempt. Best effort: a dead store (circuit
// open) reports false and the DB constraint does all the work.
func (s *deductionService) precheckDuplicate(ctx context.Context, transactionID string) bool {
	if s.rdb == nil {
		return false
	}
	var seen bool
	err := s.breaker.Execute(func() error {
		fresh, err := s.rdb.SetNX(ctx, "dedup:tx:"+transactionID, 1, 24*time.Hour).Result()
		if err != nil {
			return err
		}
		seen = !fresh
		return nil
	})
	if err != nil {
		return false
	}
	return seen
}

// handleRedelivery decides what a duplicate transaction id means: a committed
// transaction replays its original result without touching stock; a failed
// one is allowed a fresh attempt; anything in flight is rejected.
func (s *deductionService) handleRedelivery(ctx context.Context, transactionID string) (*dto.DeductionResponse, error) {
	existing, err := s.deductions.FindTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	switch existing.State {
	case model.TxStateCommitted:
		return s.replayResponse(ctx, existing)
	case model.TxStateFailed:
		// Failure is terminal for the attempt, not the identity: reset and
		// re-run under the original parameters.
		if err := s.deductions.UpdateTransactionState(ctx, existing.ID, model.TxStateReceived,
			map[string]interface{}{"fail_reason": ""}); err != nil {
			return nil, err
		}
		existing.State = model.TxStateReceived
		resolver, ok := s.resolvers[existing.Strategy]
		if !ok {
			return nil, fmt.Errorf("unknown resolver strategy %q", existing.Strategy)
		}
		return s.process(ctx, existing, resolver)
	default:
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrTransactionInProgress)
	}
}

// process drives one accepted transaction through
// resolving → applying → committed, marking it failed on any error.
func (s *deductionService) process(ctx context.Context, txRec *model.ProductionTransaction, resolver ResolverStrategy) (*dto.DeductionResponse, error) {
	resp, err := s.resolveAndApply(ctx, txRec, resolver)
	if err != nil {
		if stateErr := s.deductions.UpdateTransactionState(ctx, txRec.ID, model.TxStateFailed,
			map[string]interface{}{"fail_reason": err.Error()}); stateErr != nil {
			log.Error().Err(stateErr).
				Str("transaction_id", txRec.TransactionID).
				Msg("failed to record transaction failure")
		}
		return nil, err
	}
	return resp, nil
}

func (s *deductionService) resolveAndApply(ctx context.Context, txRec *model.ProductionTransaction, resolver ResolverStrategy) (*dto.DeductionResponse, error) {
	if err := s.deductions.UpdateTransactionState(ctx, txRec.ID, model.TxStateResolving, nil); err != nil {
		return nil, err
	}
	res, err := resolver.Resolve(ctx, txRec.ItemID, txRec.Quantity, nil)
	if err != nil {
		return nil, err
	}

	if err := s.deductions.UpdateTransactionState(ctx, txRec.ID, model.TxStateApplying, nil); err != nil {
		return nil, err
	}
	stockAfter, err := s.applyWithRetry(ctx, txRec, res)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("transaction_id", txRec.TransactionID).
		Str("item_id", txRec.ItemID.String()).
		Str("strategy", resolver.Name()).
		Int("items_deducted", len(res.Deductions)).
		Int("truncated_nodes", res.Truncated).
		Msg("production event committed")

	return s.buildResponse(ctx, txRec, resolver.Name(), res, stockAfter, false)
}

// applyWithRetry commits the full write set in one transaction, retrying
// transient conflicts with linear backoff. A strict-mode shortfall is a
// business outcome and is never retried. Returns final stock per item.
func (s *deductionService) applyWithRetry(ctx context.Context, txRec *model.ProductionTransaction, res *Resolution) (map[uuid.UUID]decimal.Decimal, error) {
	var stockAfter map[uuid.UUID]decimal.Decimal
	var err error
	for attempt := 1; ; attempt++ {
		stockAfter, err = s.apply(ctx, txRec, res)
		if err == nil {
			return stockAfter, nil
		}
		if errors.Is(err, ErrStockShortfall) || attempt >= s.cfg.MaxRetries {
			return nil, err
		}
		log.Warn().Err(err).
			Str("transaction_id", txRec.TransactionID).
			Int("attempt", attempt).
			Msg("deduction apply failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBase):
		}
	}
}

func (s *deductionService) apply(ctx context.Context, txRec *model.ProductionTransaction, res *Resolution) (map[uuid.UUID]decimal.Decimal, error) {
	// Group contributions per deducted item, keeping resolver order inside
	// each group so the audit trail's before/after chain is deterministic.
	byItem := make(map[uuid.UUID][]Contribution)
	for _, c := range res.Contributions {
		byItem[c.ChildItemID] = append(byItem[c.ChildItemID], c)
	}
	// Lock items in a fixed order: concurrent events touching overlapping
	// leaves serialize instead of deadlocking.
	itemIDs := make([]uuid.UUID, 0, len(byItem))
	for id := range byItem {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool {
		return bytes.Compare(itemIDs[i][:], itemIDs[j][:]) < 0
	})

	stockAfter := make(map[uuid.UUID]decimal.Decimal, len(itemIDs))
	err := runTx(ctx, s.items.DB(), func(tx *gorm.DB) error {
		var logs []*model.DeductionLog
		for _, id := range itemIDs {
			item, err := s.items.LockForUpdateTx(tx, id)
			if err != nil {
				return fmt.Errorf("lock item %s: %w", id, err)
			}
			stock := item.CurrentStock
			for _, c := range byItem[id] {
				before := stock
				stock = stock.Sub(c.Deducted)
				if !s.cfg.AllowNegativeStock && stock.IsNegative() {
					return fmt.Errorf("item %s: %w", id, ErrStockShortfall)
				}
				logs = append(logs, &model.DeductionLog{
					TransactionID:    txRec.TransactionID,
					ParentItemID:     c.ParentItemID,
					ChildItemID:      c.ChildItemID,
					BOMLevel:         c.Level,
					QuantityRequired: c.QuantityRequired,
					ParentQuantity:   c.ParentQuantity,
					DeductedQuantity: c.Deducted,
					StockBefore:      before,
					StockAfter:       stock,
				})
			}
			if err := s.items.SetStockTx(tx, id, stock); err != nil {
				return fmt.Errorf("update stock %s: %w", id, err)
			}
			stockAfter[id] = stock
		}
		if err := s.deductions.AppendLogsTx(tx, logs); err != nil {
			return fmt.Errorf("append deduction logs: %w", err)
		}
		return s.deductions.SetTransactionStateTx(tx, txRec.ID, model.TxStateCommitted,
			map[string]interface{}{"truncated_nodes": res.Truncated})
	})
	if err != nil {
		return nil, err
	}
	return stockAfter, nil
}

// replayResponse rebuilds the original outcome of a committed transaction
// from its audit trail. Stock is not touched.
func (s *deductionService) replayResponse(ctx context.Context, txRec *model.ProductionTransaction) (*dto.DeductionResponse, error) {
	logs, err := s.deductions.ListLogs(ctx, txRec.TransactionID)
	if err != nil {
		return nil, err
	}
	deducted := make(map[uuid.UUID]decimal.Decimal)
	stockAfter := make(map[uuid.UUID]decimal.Decimal)
	for _, l := range logs {
		deducted[l.ChildItemID] = deducted[l.ChildItemID].Add(l.DeductedQuantity)
		stockAfter[l.ChildItemID] = l.StockAfter
	}
	res := &Resolution{Deductions: deducted, Truncated: txRec.TruncatedNodes}
	return s.buildResponse(ctx, txRec, txRec.Strategy, res, stockAfter, true)
}

func (s *deductionService) buildResponse(ctx context.Context, txRec *model.ProductionTransaction, strategy string, res *Resolution, stockAfter map[uuid.UUID]decimal.Decimal, replayed bool) (*dto.DeductionResponse, error) {
	ids := make([]uuid.UUID, 0, len(res.Deductions))
	for id := range res.Deductions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	codes := make(map[uuid.UUID]string, len(ids))
	if len(ids) > 0 {
		items, err := s.items.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range items {
			codes[items[i].ID] = items[i].Code
		}
	}

	resp := &dto.DeductionResponse{
		TransactionID:  txRec.TransactionID,
		State:          model.TxStateCommitted,
		ItemID:         txRec.ItemID,
		Quantity:       txRec.Quantity,
		Strategy:       strategy,
		Replayed:       replayed,
		TruncatedNodes: res.Truncated,
		Deductions:     make([]dto.DeductionItem, 0, len(ids)),
	}
	for _, id := range ids {
		resp.Deductions = append(resp.Deductions, dto.DeductionItem{
			ItemID:     id,
			ItemCode:   codes[id],
			Deducted:   res.Deductions[id],
			StockAfter: stockAfter[id],
		})
	}
	return resp, nil
}

func (s *deductionService) GetAuditTrail(ctx context.Context, transactionID string) ([]dto.DeductionLogRow, error) {
	if _, err := s.deductions.FindTransaction(ctx, transactionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
		}
		return nil, err
	}
	logs, err := s.deductions.ListLogs(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	rows := make([]dto.DeductionLogRow, len(logs))
	for i, l := range logs {
		rows[i] = dto.DeductionLogRow{
			ID:               l.ID,
			TransactionID:    l.TransactionID,
			ParentItemID:     l.ParentItemID,
			ChildItemID:      l.ChildItemID,
			BOMLevel:         l.BOMLevel,
			QuantityRequired: l.QuantityRequired,
			ParentQuantity:   l.ParentQuantity,
			DeductedQuantity: l.DeductedQuantity,
			StockBefore:      l.StockBefore,
			StockAfter:       l.StockAfter,
			CreatedAt:        l.CreatedAt,
		}
	}
	return rows, nil
}
