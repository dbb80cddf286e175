package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalmarket/internal/models"
	"signalmarket/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertSignalTx(ctx context.Context, tx *gorm.DB, item *models.Signal) error {
	if tx == nil {
		return s.InsertSignal(ctx, item)
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Signal
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func applySignalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.StrategyID != nil && strings.TrimSpace(*params.StrategyID) != "" {
		query = query.Where("strategy_id = ?", strings.TrimSpace(*params.StrategyID))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	order := "created_at desc"
	if params.Asc {
		order = "created_at asc"
	}
	var items []models.Signal
	err := query.Order(order).
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params).Count(&total).Error
	return total, err
}

// FindOldestOpenEntryTx returns the oldest open ENTRY for the lifecycle key,
// locked for update so a concurrent EXIT in another instance cannot close the
// same row.
func (s *Store) FindOldestOpenEntryTx(ctx context.Context, tx *gorm.DB, strategyID, symbol string) (*models.Signal, error) {
	db := tx
	if db == nil {
		db = s.db
	}
	if db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Signal
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("strategy_id = ?", strategyID).
		Where("symbol = ?", symbol).
		Where("type = ?", models.SignalTypeEntry).
		Where("closed_at IS NULL").
		Where("status IN ?", []string{models.SignalStatusPending, models.SignalStatusActive}).
		Order("created_at asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CloseEntryTx(ctx context.Context, tx *gorm.DB, close repository.CloseEntry) error {
	db := tx
	if db == nil {
		db = s.db
	}
	if db == nil {
		return nil
	}
	return db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", close.EntryID).
		Updates(map[string]any{
			"status":      models.SignalStatusExecuted,
			"exit_price":  close.ExitPrice,
			"profit_loss": close.ProfitLoss,
			"closed_at":   close.ClosedAt,
		}).Error
}

func (s *Store) ListOpenEntriesBefore(ctx context.Context, before time.Time, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Signal
	err := s.db.WithContext(ctx).
		Where("type = ?", models.SignalTypeEntry).
		Where("closed_at IS NULL").
		Where("status IN ?", []string{models.SignalStatusPending, models.SignalStatusActive}).
		Where("created_at < ?", before).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 500)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateSignalStatus(ctx context.Context, id, status string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *Store) ListSignalsSince(ctx context.Context, since time.Time) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Signal
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- strategies -------------------------------------------------------------

func (s *Store) GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStrategyByToken(ctx context.Context, source, token string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).
		Where("source = ?", source).
		Where("name = ?", token).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateStrategyIfAbsent relies on the (source, name) unique constraint so two
// concurrent first-sightings of a token cannot create two rows; the loser's
// insert is a no-op and the caller re-reads.
func (s *Store) CreateStrategyIfAbsent(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "name"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.Source != nil && strings.TrimSpace(*params.Source) != "" {
		query = query.Where("source = ?", strings.TrimSpace(*params.Source))
	}
	if params.PublicOnly {
		query = query.Where("is_public = ?", true)
	}
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.VirtualOnly {
		query = query.Where("is_virtual = ?", true)
	}
	var items []models.Strategy
	err := query.Order("name asc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetStrategyActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// PromoteStrategy turns a virtual strategy into a registered one owned by the
// given provider. Administrative action; historical attribution is untouched.
func (s *Store) PromoteStrategy(ctx context.Context, id, providerID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Where("is_virtual = ?", true).
		Updates(map[string]any{
			"is_virtual":  false,
			"provider_id": providerID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// --- subscriptions ----------------------------------------------------------

func (s *Store) GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Subscription
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetSubscription(ctx context.Context, userID, strategyID string) (*models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("strategy_id = ?", strategyID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSubscribersByStrategy(ctx context.Context, strategyID string) ([]models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Subscription
	err := s.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Where("status = ?", models.SubscriptionActive).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ?", models.SubscriptionActive).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertSubscription(ctx context.Context, item *models.Subscription) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "strategy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"subscribed_pairs",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) CancelSubscription(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("status", models.SubscriptionCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// --- audit ------------------------------------------------------------------

func (s *Store) InsertAuditRecord(ctx context.Context, item *models.AuditRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListAuditRecords(ctx context.Context, params repository.ListAuditParams) ([]models.AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.AuditRecord{})
	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(*params.Action))
	}
	if params.Resource != nil && strings.TrimSpace(*params.Resource) != "" {
		query = query.Where("resource = ?", strings.TrimSpace(*params.Resource))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	var items []models.AuditRecord
	err := query.Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
