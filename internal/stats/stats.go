// Package stats computes per-strategy marketplace performance over the
// rolling visibility window, with a short TTL cache in front of the database.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
	"signalmarket/internal/visibility"
)

// Store is the read surface the aggregator needs.
type Store interface {
	ListSignalsSince(ctx context.Context, since time.Time) ([]models.Signal, error)
	ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error)
}

// StrategyStats is the public performance card for one strategy.
type StrategyStats struct {
	StrategyID   string          `json:"strategyId"`
	Name         string          `json:"name"`
	IsVirtual    bool            `json:"isVirtual"`
	TotalSignals int             `json:"totalSignals"`
	OpenCount    int             `json:"openCount"`
	ClosedCount  int             `json:"closedCount"`
	WinCount     int             `json:"winCount"`
	WinRate      decimal.Decimal `json:"winRate"`
	TotalPnL     decimal.Decimal `json:"totalPnl"`
	AvgPnL       decimal.Decimal `json:"avgPnl"`
	LastSignalAt *time.Time      `json:"lastSignalAt,omitempty"`
}

// Aggregator serves marketplace listings and the leaderboard from a cached
// snapshot so webhook bursts never hammer the aggregate queries.
type Aggregator struct {
	repo       Store
	logger     *zap.Logger
	windowDays int
	cacheTTL   time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	snapshot  []StrategyStats
	refreshed time.Time
}

func NewAggregator(repo Store, logger *zap.Logger, windowDays int, cacheTTL time.Duration) *Aggregator {
	if windowDays <= 0 {
		windowDays = visibility.DefaultWindowDays
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Aggregator{
		repo:       repo,
		logger:     logger,
		windowDays: windowDays,
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
}

// Snapshot returns the cached stats, refreshing when stale.
func (a *Aggregator) Snapshot(ctx context.Context) ([]StrategyStats, error) {
	a.mu.RLock()
	fresh := a.snapshot != nil && a.now().Sub(a.refreshed) < a.cacheTTL
	snap := a.snapshot
	a.mu.RUnlock()
	if fresh {
		return snap, nil
	}
	return a.Refresh(ctx)
}

// Refresh recomputes the snapshot unconditionally. Wired to a cron job so
// the cache is usually warm.
func (a *Aggregator) Refresh(ctx context.Context) ([]StrategyStats, error) {
	now := a.now()
	cutoff := visibility.Cutoff(now, a.windowDays)

	strategies, err := a.repo.ListStrategies(ctx, repository.ListStrategiesParams{
		Limit:      1000,
		PublicOnly: true,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	signals, err := a.repo.ListSignalsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	byStrategy := map[string][]models.Signal{}
	for _, sig := range signals {
		if sig.StrategyID == nil {
			continue
		}
		byStrategy[*sig.StrategyID] = append(byStrategy[*sig.StrategyID], sig)
	}

	snap := make([]StrategyStats, 0, len(strategies))
	for _, st := range strategies {
		snap = append(snap, aggregate(st, byStrategy[st.ID]))
	}
	sortLeaderboard(snap)

	a.mu.Lock()
	a.snapshot = snap
	a.refreshed = now
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.Debug("marketplace stats refreshed",
			zap.Int("strategies", len(snap)),
			zap.Int("signals", len(signals)),
		)
	}
	return snap, nil
}

// Leaderboard returns the top n strategies by total P&L, win rate breaking
// ties.
func (a *Aggregator) Leaderboard(ctx context.Context, n int) ([]StrategyStats, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(snap) {
		n = len(snap)
	}
	return snap[:n], nil
}

func aggregate(st models.Strategy, signals []models.Signal) StrategyStats {
	out := StrategyStats{
		StrategyID: st.ID,
		Name:       st.Name,
		IsVirtual:  st.IsVirtual,
		WinRate:    decimal.Zero,
		TotalPnL:   decimal.Zero,
		AvgPnL:     decimal.Zero,
	}
	for _, sig := range signals {
		out.TotalSignals++
		if out.LastSignalAt == nil || sig.CreatedAt.After(*out.LastSignalAt) {
			created := sig.CreatedAt
			out.LastSignalAt = &created
		}
		if sig.Type != models.SignalTypeEntry {
			continue
		}
		if sig.Open() {
			out.OpenCount++
			continue
		}
		if sig.ProfitLoss == nil {
			continue
		}
		out.ClosedCount++
		out.TotalPnL = out.TotalPnL.Add(*sig.ProfitLoss)
		if sig.ProfitLoss.IsPositive() {
			out.WinCount++
		}
	}
	if out.ClosedCount > 0 {
		closed := decimal.NewFromInt(int64(out.ClosedCount))
		out.WinRate = decimal.NewFromInt(int64(out.WinCount)).
			Div(closed).Mul(decimal.NewFromInt(100)).Round(2)
		out.AvgPnL = out.TotalPnL.Div(closed).Round(4)
	}
	return out
}

func sortLeaderboard(snap []StrategyStats) {
	sort.SliceStable(snap, func(i, j int) bool {
		if !snap[i].TotalPnL.Equal(snap[j].TotalPnL) {
			return snap[i].TotalPnL.GreaterThan(snap[j].TotalPnL)
		}
		if !snap[i].WinRate.Equal(snap[j].WinRate) {
			return snap[i].WinRate.GreaterThan(snap[j].WinRate)
		}
		return snap[i].TotalSignals > snap[j].TotalSignals
	})
}
