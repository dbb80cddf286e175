// Package ratelimit enforces fixed-window request limits per client, with
// separate categories for general, auth, trading, marketplace and export
// traffic. Counters live in Redis when available, or in process memory.
package ratelimit

import (
	"context"
	"time"

	"signalmarket/internal/config"
)

// Categories. Each endpoint group gets its own window and budget.
const (
	CategoryGeneral     = "general"
	CategoryAuth        = "auth"
	CategoryTrading     = "trading"
	CategoryMarketplace = "marketplace"
	CategoryExport      = "export"
)

// Rule is a fixed-window budget for one category.
type Rule struct {
	Window time.Duration
	Max    int
}

// Decision describes the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// CounterStore increments a windowed counter. Incr sets the key expiry on
// first increment only, so the window is anchored to the first request.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Decr(ctx context.Context, key string) error
}

// Limiter maps a category to its rule and consults the counter store.
type Limiter struct {
	store CounterStore
	rules map[string]Rule
}

func New(store CounterStore, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		store: store,
		rules: map[string]Rule{
			CategoryGeneral:     {Window: cfg.General.Window, Max: cfg.General.Max},
			CategoryAuth:        {Window: cfg.Auth.Window, Max: cfg.Auth.Max},
			CategoryTrading:     {Window: cfg.Trading.Window, Max: cfg.Trading.Max},
			CategoryMarketplace: {Window: cfg.Marketplace.Window, Max: cfg.Marketplace.Max},
			CategoryExport:      {Window: cfg.Export.Window, Max: cfg.Export.Max},
		},
	}
}

// Allow consumes one request from the client's budget in the category.
func (l *Limiter) Allow(ctx context.Context, category, clientID string) (Decision, error) {
	rule, ok := l.rules[category]
	if !ok {
		rule = l.rules[CategoryGeneral]
	}
	if rule.Max <= 0 {
		return Decision{Allowed: true, Limit: rule.Max}, nil
	}

	count, resetAt, err := l.store.Incr(ctx, key(category, clientID), rule.Window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Limit:   rule.Max,
		ResetAt: resetAt,
	}
	if count > int64(rule.Max) {
		d.RetryAfter = time.Until(resetAt)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
		return d, nil
	}
	d.Allowed = true
	d.Remaining = rule.Max - int(count)
	return d, nil
}

// Forgive refunds one request. Used by auth endpoints so that successful
// logins do not count toward the failed-attempt budget.
func (l *Limiter) Forgive(ctx context.Context, category, clientID string) error {
	return l.store.Decr(ctx, key(category, clientID))
}

func key(category, clientID string) string {
	return "ratelimit:" + category + ":" + clientID
}
