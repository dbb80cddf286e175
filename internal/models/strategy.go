package models

import "time"

// Strategy is a named trading system that emits signals. Registered strategies
// are created by a provider; virtual ones are created lazily by the resolver
// on the first sighting of an unknown token and carry no provider.
type Strategy struct {
	ID     string `gorm:"type:varchar(64);primaryKey"`
	Name   string `gorm:"type:varchar(64);not null;uniqueIndex:ux_strategies_source_name"`
	Source string `gorm:"type:varchar(50);not null;uniqueIndex:ux_strategies_source_name"`

	ProviderID  *string `gorm:"type:varchar(64);index"`
	Description string  `gorm:"type:text"`

	IsPublic  bool `gorm:"not null;default:false;index"`
	IsActive  bool `gorm:"not null;default:true;index"`
	IsVirtual bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
