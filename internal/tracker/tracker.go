package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"signalmarket/internal/models"
	"signalmarket/internal/parser"
	"signalmarket/internal/repository"
)

// ValidationError means the alert parsed structurally but carries
// semantically invalid fields. The signal is not persisted at all.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + ": " + e.Reason
}

// Store is the slice of the repository the tracker needs.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	InsertSignalTx(ctx context.Context, tx *gorm.DB, item *models.Signal) error
	FindOldestOpenEntryTx(ctx context.Context, tx *gorm.DB, strategyID, symbol string) (*models.Signal, error)
	CloseEntryTx(ctx context.Context, tx *gorm.DB, close repository.CloseEntry) error
	ListOpenEntriesBefore(ctx context.Context, before time.Time, limit int) ([]models.Signal, error)
	UpdateSignalStatus(ctx context.Context, id, status string) error
}

// Result reports what one alert did to the lifecycle.
type Result struct {
	Signal      *models.Signal
	ClosedEntry *models.Signal
	Orphan      bool
	Duplicate   bool
}

// Tracker pairs ENTRY alerts with later EXIT alerts per (strategyId, symbol)
// and computes realized P&L when a pair closes. All mutations for one key are
// serialized through a keyed mutex; each alert is a single atomic unit
// against the store.
type Tracker struct {
	repo   Store
	logger *zap.Logger
	keys   *keyedMutex

	// Short-window duplicate suppression for alert sources that re-fire the
	// same webhook. Coarse on purpose.
	dupWindow time.Duration
	dedupMu   sync.Mutex
	lastSeen  map[string]time.Time

	now func() time.Time
}

func New(repo Store, logger *zap.Logger, dupWindow time.Duration) *Tracker {
	return &Tracker{
		repo:      repo,
		logger:    logger,
		keys:      newKeyedMutex(),
		dupWindow: dupWindow,
		lastSeen:  map[string]time.Time{},
		now:       time.Now,
	}
}

// Record validates a candidate, persists it, and advances the lifecycle state
// machine for its (strategyId, symbol) key: NONE -> OPEN on ENTRY, OPEN ->
// CLOSED on a matching EXIT (oldest open ENTRY first), EXIT with nothing open
// is an orphan. Malformed numeric fields fail the whole record; nothing is
// persisted partially. notify, when non-nil, is called inside the per-key
// critical section so downstream fan-out observes signals in the same order
// they were persisted.
func (t *Tracker) Record(ctx context.Context, cand parser.Candidate, strategyID string, notify func(*Result)) (*Result, error) {
	sig, err := t.buildSignal(cand, strategyID)
	if err != nil {
		return nil, err
	}

	if t.isDuplicate(cand, strategyID) {
		if t.logger != nil {
			t.logger.Debug("duplicate alert suppressed",
				zap.String("strategy_id", strategyID),
				zap.String("symbol", sig.Symbol),
			)
		}
		return &Result{Duplicate: true}, nil
	}

	key := strategyID + "|" + sig.Symbol
	t.keys.Lock(key)
	defer t.keys.Unlock(key)

	// Stamped under the key lock so concurrent same-key alerts persist with
	// timestamps in apply order, which the FIFO exit match relies on.
	sig.CreatedAt = t.now().UTC()

	var res *Result
	if sig.Type == models.SignalTypeEntry {
		if err := t.repo.InTx(ctx, func(tx *gorm.DB) error {
			return t.repo.InsertSignalTx(ctx, tx, sig)
		}); err != nil {
			return nil, err
		}
		res = &Result{Signal: sig}
	} else {
		res, err = t.recordExit(ctx, sig, strategyID)
		if err != nil {
			return nil, err
		}
	}

	if notify != nil {
		notify(res)
	}
	return res, nil
}

func (t *Tracker) recordExit(ctx context.Context, sig *models.Signal, strategyID string) (*Result, error) {
	res := &Result{Signal: sig}

	err := t.repo.InTx(ctx, func(tx *gorm.DB) error {
		entry, err := t.repo.FindOldestOpenEntryTx(ctx, tx, strategyID, sig.Symbol)
		if errors.Is(err, repository.ErrNotFound) {
			// Orphan EXIT: recorded, not fatal, no P&L anywhere.
			res.Orphan = true
			sig.Status = models.SignalStatusExecuted
			return t.repo.InsertSignalTx(ctx, tx, sig)
		}
		if err != nil {
			return err
		}

		exitRef := entry.EntryPrice
		if sig.EntryPrice.IsPositive() {
			exitRef = sig.EntryPrice
		}
		pnl := profitLossPercent(entry.EntryPrice, exitRef, entry.Direction)
		closedAt := sig.CreatedAt

		if err := t.repo.CloseEntryTx(ctx, tx, repository.CloseEntry{
			EntryID:    entry.ID,
			ExitPrice:  exitRef,
			ProfitLoss: pnl,
			ClosedAt:   closedAt,
		}); err != nil {
			return err
		}

		sig.Direction = entry.Direction
		sig.Status = models.SignalStatusExecuted
		if err := t.repo.InsertSignalTx(ctx, tx, sig); err != nil {
			return err
		}

		closed := *entry
		closed.Status = models.SignalStatusExecuted
		closed.ExitPrice = &exitRef
		closed.ProfitLoss = &pnl
		closed.ClosedAt = &closedAt
		res.ClosedEntry = &closed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Orphan && t.logger != nil {
		t.logger.Warn("orphan exit recorded",
			zap.String("strategy_id", strategyID),
			zap.String("symbol", sig.Symbol),
			zap.String("signal_id", sig.ID),
		)
	}
	return res, nil
}

// ExpireStale marks open ENTRYs older than maxAge as FAILED. They keep their
// history but stop matching future EXITs.
func (t *Tracker) ExpireStale(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	before := t.now().UTC().Add(-maxAge)
	stale, err := t.repo.ListOpenEntriesBefore(ctx, before, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sig := range stale {
		if err := t.repo.UpdateSignalStatus(ctx, sig.ID, models.SignalStatusFailed); err != nil {
			return expired, err
		}
		expired++
		if t.logger != nil {
			t.logger.Info("stale open entry expired",
				zap.String("signal_id", sig.ID),
				zap.String("symbol", sig.Symbol),
				zap.Time("created_at", sig.CreatedAt),
			)
		}
	}
	return expired, nil
}

func (t *Tracker) buildSignal(cand parser.Candidate, strategyID string) (*models.Signal, error) {
	if cand.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "required"}
	}

	// An absent price is legal: entries open at 0 and realize zero P&L,
	// exits fall back to the entry price. Only malformed numbers reject.
	price, err := parseDecimal(cand.Price, "price")
	if err != nil {
		return nil, err
	}
	contracts, err := parseDecimal(cand.Contracts, "contracts")
	if err != nil {
		return nil, err
	}
	stopLoss, err := parseDecimalPtr(cand.StopLoss, "stopLoss")
	if err != nil {
		return nil, err
	}
	takeProfit, err := parseDecimalPtr(cand.TakeProfit, "takeProfit")
	if err != nil {
		return nil, err
	}

	status := models.SignalStatusActive
	if cand.Type == models.SignalTypeExit {
		status = models.SignalStatusPending
	}

	sid := strategyID
	return &models.Signal{
		ID:         uuid.NewString(),
		Source:     cand.Source,
		RawText:    cand.RawText,
		StrategyID: &sid,
		Symbol:     cand.Symbol,
		Type:       cand.Type,
		Direction:  cand.Direction,
		Status:     status,
		EntryPrice: price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Contracts:  contracts,
	}, nil
}

func (t *Tracker) isDuplicate(cand parser.Candidate, strategyID string) bool {
	if t.dupWindow <= 0 {
		return false
	}
	key := strategyID + "|" + cand.Symbol + "|" + cand.Type + "|" + cand.Direction + "|" + cand.Price
	now := t.now()

	t.dedupMu.Lock()
	defer t.dedupMu.Unlock()
	for k, seen := range t.lastSeen {
		if now.Sub(seen) > t.dupWindow {
			delete(t.lastSeen, k)
		}
	}
	if seen, ok := t.lastSeen[key]; ok && now.Sub(seen) < t.dupWindow {
		return true
	}
	t.lastSeen[key] = now
	return false
}

// profitLossPercent is ((exit-entry)/entry)*100 for LONG, sign-inverted for
// SHORT.
func profitLossPercent(entry, exit decimal.Decimal, direction string) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	pct := exit.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	if direction == models.DirectionShort {
		pct = pct.Neg()
	}
	return pct.Round(4)
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "not a number: " + raw}
	}
	return d, nil
}

func parseDecimalPtr(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := parseDecimal(raw, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
