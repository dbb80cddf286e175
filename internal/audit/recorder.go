// Package audit records security and trading events through a bounded async
// queue so the hot path never blocks on the database.
package audit

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalmarket/internal/models"
)

// Store persists audit records.
type Store interface {
	InsertAuditRecord(ctx context.Context, record *models.AuditRecord) error
}

// Recorder buffers records in a channel and drains them in Run. When the
// buffer is full the record is dropped and counted; auditing is best effort
// and must not apply backpressure to request handling.
type Recorder struct {
	repo    Store
	logger  *zap.Logger
	queue   chan models.AuditRecord
	dropped atomic.Int64
	now     func() time.Time
}

func NewRecorder(repo Store, logger *zap.Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan models.AuditRecord, queueSize),
		now:    time.Now,
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is buffered.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case record := <-r.queue:
			r.persist(record)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case record := <-r.queue:
			r.persist(record)
		default:
			return
		}
	}
}

func (r *Recorder) persist(record models.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.repo.InsertAuditRecord(ctx, &record); err != nil && r.logger != nil {
		r.logger.Error("audit record insert failed",
			zap.String("action", record.Action),
			zap.String("resource", record.Resource),
			zap.Error(err),
		)
	}
}

// Log enqueues a record without blocking. Details must be JSON-marshalable.
func (r *Recorder) Log(action, resource, resourceID string, userID *string, status string, details any) {
	record := models.AuditRecord{
		ID:         uuid.NewString(),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		UserID:     userID,
		Status:     status,
		CreatedAt:  r.now().UTC(),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			record.Details = b
		}
	}

	select {
	case r.queue <- record:
	default:
		n := r.dropped.Add(1)
		if r.logger != nil {
			r.logger.Warn("audit queue full, record dropped",
				zap.String("action", action),
				zap.Int64("dropped_total", n),
			)
		}
	}
}

// Dropped returns how many records were discarded due to queue overflow.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Typed helpers for the common event families.

func (r *Recorder) Login(userID string, success bool, details any) {
	status := models.AuditStatusSuccess
	if !success {
		status = models.AuditStatusFailed
	}
	r.Log("login", "user", userID, &userID, status, details)
}

func (r *Recorder) SubscriptionChange(userID, subscriptionID, action string, details any) {
	r.Log(action, "subscription", subscriptionID, &userID, models.AuditStatusSuccess, details)
}

func (r *Recorder) TradeExecution(signalID string, success bool, details any) {
	status := models.AuditStatusSuccess
	if !success {
		status = models.AuditStatusFailed
	}
	r.Log("trade_execution", "signal", signalID, nil, status, details)
}

func (r *Recorder) CredentialChange(userID string, details any) {
	r.Log("credential_change", "user", userID, &userID, models.AuditStatusSuccess, details)
}
