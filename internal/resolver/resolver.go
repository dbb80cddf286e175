package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

// StrategyStore is the slice of the repository the resolver needs.
type StrategyStore interface {
	GetStrategyByToken(ctx context.Context, source, token string) (*models.Strategy, error)
	CreateStrategyIfAbsent(ctx context.Context, item *models.Strategy) error
}

// Resolver maps a strategy token to a canonical strategy identity. Unknown
// tokens get a virtual strategy created lazily; creation is idempotent under
// concurrent first-sightings because it rides the (source, name) unique
// constraint and re-reads on conflict. Resolution never deletes or
// deactivates anything.
type Resolver struct {
	repo   StrategyStore
	logger *zap.Logger

	// Read-through cache over the strategies table. Never authoritative:
	// populated from the store, dropped on Invalidate, refreshed on miss.
	mu    sync.RWMutex
	cache map[string]string
}

func New(repo StrategyStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		logger: logger,
		cache:  map[string]string{},
	}
}

// Resolve returns the strategy id for a (token, source) pair. The only
// observable failure is a store error; an unseen token resolves by creating a
// virtual strategy.
func (r *Resolver) Resolve(ctx context.Context, token, source string) (string, error) {
	key := source + "|" + token

	r.mu.RLock()
	id, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	strat, err := r.repo.GetStrategyByToken(ctx, source, token)
	if err == nil {
		r.put(key, strat.ID)
		return strat.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	virtual := &models.Strategy{
		ID:          uuid.NewString(),
		Name:        token,
		Source:      source,
		Description: "Auto-detected strategy: " + token,
		IsPublic:    true,
		IsActive:    true,
		IsVirtual:   true,
	}
	if err := r.repo.CreateStrategyIfAbsent(ctx, virtual); err != nil {
		return "", err
	}

	// Re-read rather than trusting our insert: under a race the row that won
	// the constraint is the canonical identity.
	strat, err = r.repo.GetStrategyByToken(ctx, source, token)
	if err != nil {
		return "", err
	}
	if strat.ID != virtual.ID && r.logger != nil {
		r.logger.Debug("virtual strategy race resolved to existing row",
			zap.String("token", token),
			zap.String("source", source),
			zap.String("strategy_id", strat.ID),
		)
	}
	r.put(key, strat.ID)
	return strat.ID, nil
}

// Invalidate drops a cached mapping, e.g. after a provider registers a
// strategy whose token was previously resolved virtually.
func (r *Resolver) Invalidate(token, source string) {
	r.mu.Lock()
	delete(r.cache, source+"|"+token)
	r.mu.Unlock()
}

func (r *Resolver) put(key, id string) {
	r.mu.Lock()
	r.cache[key] = id
	r.mu.Unlock()
}
