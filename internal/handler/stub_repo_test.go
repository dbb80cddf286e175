package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

// stubRepo is an in-memory repository.Repository for handler tests.
type stubRepo struct {
	mu            sync.Mutex
	signals       []*models.Signal
	strategies    []*models.Strategy
	subscriptions []*models.Subscription
	audits        []*models.AuditRecord
}

func (r *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (r *stubRepo) InsertSignal(ctx context.Context, item *models.Signal) error {
	return r.InsertSignalTx(ctx, nil, item)
}

func (r *stubRepo) InsertSignalTx(ctx context.Context, tx *gorm.DB, item *models.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.signals = append(r.signals, &copied)
	return nil
}

func (r *stubRepo) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range r.signals {
		if sig.ID == id {
			copied := *sig
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) matchSignal(sig *models.Signal, params repository.ListSignalsParams) bool {
	if params.StrategyID != nil && (sig.StrategyID == nil || *sig.StrategyID != *params.StrategyID) {
		return false
	}
	if params.Symbol != nil && sig.Symbol != *params.Symbol {
		return false
	}
	if params.Type != nil && sig.Type != *params.Type {
		return false
	}
	if params.Status != nil && sig.Status != *params.Status {
		return false
	}
	if params.Since != nil && sig.CreatedAt.Before(*params.Since) {
		return false
	}
	return true
}

func (r *stubRepo) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Signal
	for _, sig := range r.signals {
		if r.matchSignal(sig, params) {
			out = append(out, *sig)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if params.Asc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[j].CreatedAt.Before(out[i].CreatedAt)
	})
	return out, nil
}

func (r *stubRepo) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, sig := range r.signals {
		if r.matchSignal(sig, params) {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) FindOldestOpenEntryTx(ctx context.Context, tx *gorm.DB, strategyID, symbol string) (*models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *models.Signal
	for _, sig := range r.signals {
		if sig.StrategyID == nil || *sig.StrategyID != strategyID || sig.Symbol != symbol || !sig.Open() {
			continue
		}
		if oldest == nil || sig.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sig
		}
	}
	if oldest == nil {
		return nil, repository.ErrNotFound
	}
	copied := *oldest
	return &copied, nil
}

func (r *stubRepo) CloseEntryTx(ctx context.Context, tx *gorm.DB, close repository.CloseEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range r.signals {
		if sig.ID == close.EntryID {
			exitPrice := close.ExitPrice
			pnl := close.ProfitLoss
			closedAt := close.ClosedAt
			sig.Status = models.SignalStatusExecuted
			sig.ExitPrice = &exitPrice
			sig.ProfitLoss = &pnl
			sig.ClosedAt = &closedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRepo) ListOpenEntriesBefore(ctx context.Context, before time.Time, limit int) ([]models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Signal
	for _, sig := range r.signals {
		if sig.Open() && sig.CreatedAt.Before(before) {
			out = append(out, *sig)
		}
	}
	return out, nil
}

func (r *stubRepo) UpdateSignalStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range r.signals {
		if sig.ID == id {
			sig.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRepo) ListSignalsSince(ctx context.Context, since time.Time) ([]models.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Signal
	for _, sig := range r.signals {
		if !sig.CreatedAt.Before(since) {
			out = append(out, *sig)
		}
	}
	return out, nil
}

func (r *stubRepo) GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.strategies {
		if st.ID == id {
			copied := *st
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) GetStrategyByToken(ctx context.Context, source, token string) (*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.strategies {
		if st.Source == source && st.Name == token {
			copied := *st
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) CreateStrategyIfAbsent(ctx context.Context, item *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.strategies {
		if st.Source == item.Source && st.Name == item.Name {
			return nil
		}
	}
	copied := *item
	r.strategies = append(r.strategies, &copied)
	return nil
}

func (r *stubRepo) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.strategies = append(r.strategies, &copied)
	return nil
}

func (r *stubRepo) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Strategy
	for _, st := range r.strategies {
		if params.PublicOnly && !st.IsPublic {
			continue
		}
		if params.ActiveOnly && !st.IsActive {
			continue
		}
		if params.VirtualOnly && !st.IsVirtual {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

func (r *stubRepo) SetStrategyActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.strategies {
		if st.ID == id {
			st.IsActive = active
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRepo) PromoteStrategy(ctx context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.strategies {
		if st.ID == id {
			st.IsVirtual = false
			st.ProviderID = &providerID
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRepo) GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.ID == id {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) GetSubscription(ctx context.Context, userID, strategyID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.UserID == userID && sub.StrategyID == strategyID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRepo) ListSubscribersByStrategy(ctx context.Context, strategyID string) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subscriptions {
		if sub.StrategyID == strategyID && sub.Status == models.SubscriptionActive {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *stubRepo) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subscriptions {
		if sub.UserID == userID && sub.Status == models.SubscriptionActive {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (r *stubRepo) UpsertSubscription(ctx context.Context, item *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.UserID == item.UserID && sub.StrategyID == item.StrategyID {
			sub.Status = item.Status
			sub.SubscribedPairs = item.SubscribedPairs
			return nil
		}
	}
	copied := *item
	r.subscriptions = append(r.subscriptions, &copied)
	return nil
}

func (r *stubRepo) CancelSubscription(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.ID == id {
			sub.Status = models.SubscriptionCancelled
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubRepo) InsertAuditRecord(ctx context.Context, item *models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.audits = append(r.audits, &copied)
	return nil
}

func (r *stubRepo) ListAuditRecords(ctx context.Context, params repository.ListAuditParams) ([]models.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditRecord
	for _, rec := range r.audits {
		if params.Action != nil && rec.Action != *params.Action {
			continue
		}
		if params.Resource != nil && rec.Resource != *params.Resource {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

var _ repository.Repository = (*stubRepo)(nil)
