package models

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription statuses.
const (
	SubscriptionActive    = "ACTIVE"
	SubscriptionCancelled = "CANCELLED"
)

// Subscription is a user's following relationship to a strategy. The pipeline
// reads it to decide fan-out targets; entitlement checks live elsewhere.
type Subscription struct {
	ID         string `gorm:"type:varchar(64);primaryKey"`
	UserID     string `gorm:"type:varchar(64);not null;uniqueIndex:ux_subscriptions_user_strategy"`
	StrategyID string `gorm:"type:varchar(64);not null;uniqueIndex:ux_subscriptions_user_strategy;index"`
	Status     string `gorm:"type:varchar(15);not null;index"`

	// Symbol allow-list; empty means all symbols.
	SubscribedPairs datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
