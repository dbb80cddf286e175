package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"signalmarket/internal/models"
)

var ErrNotFound = errors.New("not found")

type ListSignalsParams struct {
	Limit      int
	Offset     int
	StrategyID *string
	Symbol     *string
	Type       *string
	Status     *string
	Since      *time.Time
	Asc        bool
}

type ListStrategiesParams struct {
	Limit       int
	Offset      int
	Source      *string
	PublicOnly  bool
	ActiveOnly  bool
	VirtualOnly bool
}

type ListAuditParams struct {
	Limit    int
	Offset   int
	Action   *string
	Resource *string
	UserID   *string
	Since    *time.Time
}

// CloseEntry carries the fields written onto an open ENTRY when a matching
// EXIT closes it.
type CloseEntry struct {
	EntryID    string
	ExitPrice  decimal.Decimal
	ProfitLoss decimal.Decimal
	ClosedAt   time.Time
}

// Repository is the persistence boundary of the ingestion pipeline. The
// store's engine is not part of this design; the pipeline only issues
// create/read/update operations through it.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Signals. Rows are append-only: the only update paths are closing an
	// open ENTRY and status transitions.
	InsertSignal(ctx context.Context, item *models.Signal) error
	InsertSignalTx(ctx context.Context, tx *gorm.DB, item *models.Signal) error
	GetSignalByID(ctx context.Context, id string) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	FindOldestOpenEntryTx(ctx context.Context, tx *gorm.DB, strategyID, symbol string) (*models.Signal, error)
	CloseEntryTx(ctx context.Context, tx *gorm.DB, close CloseEntry) error
	ListOpenEntriesBefore(ctx context.Context, before time.Time, limit int) ([]models.Signal, error)
	UpdateSignalStatus(ctx context.Context, id, status string) error
	ListSignalsSince(ctx context.Context, since time.Time) ([]models.Signal, error)

	// Strategies. The resolver only ever creates; CreateStrategyIfAbsent must
	// be a no-op when the (source, name) pair already exists.
	GetStrategyByID(ctx context.Context, id string) (*models.Strategy, error)
	GetStrategyByToken(ctx context.Context, source, token string) (*models.Strategy, error)
	CreateStrategyIfAbsent(ctx context.Context, item *models.Strategy) error
	CreateStrategy(ctx context.Context, item *models.Strategy) error
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	SetStrategyActive(ctx context.Context, id string, active bool) error
	PromoteStrategy(ctx context.Context, id, providerID string) error

	// Subscriptions: read path decides fan-out targets, write path is the
	// minimal mutation surface the audit trail covers.
	GetSubscriptionByID(ctx context.Context, id string) (*models.Subscription, error)
	GetSubscription(ctx context.Context, userID, strategyID string) (*models.Subscription, error)
	ListSubscribersByStrategy(ctx context.Context, strategyID string) ([]models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	UpsertSubscription(ctx context.Context, item *models.Subscription) error
	CancelSubscription(ctx context.Context, id string) error

	// Audit records: insert-only.
	InsertAuditRecord(ctx context.Context, item *models.AuditRecord) error
	ListAuditRecords(ctx context.Context, params ListAuditParams) ([]models.AuditRecord, error)
}
