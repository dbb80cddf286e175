package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit statuses.
const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailed  = "FAILED"
)

// AuditRecord is an immutable append-only entry for a state-changing action.
// Only the audit recorder writes here; nothing ever updates or deletes a row.
type AuditRecord struct {
	ID         string  `gorm:"type:varchar(64);primaryKey"`
	Action     string  `gorm:"type:varchar(50);not null;index"`
	Resource   string  `gorm:"type:varchar(50);not null;index"`
	ResourceID string  `gorm:"type:varchar(64);index"`
	UserID     *string `gorm:"type:varchar(64);index"`

	Details datatypes.JSON `gorm:"type:jsonb"`
	Status  string         `gorm:"type:varchar(15);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AuditRecord) TableName() string {
	return "audit_records"
}
