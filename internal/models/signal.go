package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal types.
const (
	SignalTypeEntry = "ENTRY"
	SignalTypeExit  = "EXIT"
)

// Signal directions.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
	DirectionFlat  = "FLAT"
)

// Signal statuses.
const (
	SignalStatusPending  = "PENDING"
	SignalStatusActive   = "ACTIVE"
	SignalStatusExecuted = "EXECUTED"
	SignalStatusFailed   = "FAILED"
)

// Signal is one ingested trading alert. RawText is write-once; rows are never
// deleted, an open ENTRY is closed in place when a matching EXIT arrives.
type Signal struct {
	ID      string `gorm:"type:varchar(64);primaryKey"`
	Source  string `gorm:"type:varchar(50);not null;index"`
	RawText string `gorm:"type:text;not null"`

	StrategyID *string `gorm:"type:varchar(64);index:idx_signals_lifecycle"`
	Symbol     string  `gorm:"type:varchar(30);not null;index:idx_signals_lifecycle"`

	Type      string `gorm:"type:varchar(10);not null;index"`
	Direction string `gorm:"type:varchar(10);not null"`
	Status    string `gorm:"type:varchar(15);not null;index"`

	EntryPrice decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(30,10)"`
	StopLoss   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	TakeProfit *decimal.Decimal `gorm:"type:numeric(30,10)"`
	Contracts  decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0"`

	// Set if and only if this is an ENTRY closed by a matched EXIT.
	ProfitLoss *decimal.Decimal `gorm:"type:numeric(20,10)"`
	ClosedAt   *time.Time       `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Signal) TableName() string {
	return "signals"
}

// Open reports whether the signal is an ENTRY with no matched EXIT yet.
func (s Signal) Open() bool {
	return s.Type == SignalTypeEntry && s.ClosedAt == nil &&
		(s.Status == SignalStatusPending || s.Status == SignalStatusActive)
}
