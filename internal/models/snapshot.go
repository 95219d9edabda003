package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NetWorthSnapshot is the persisted valuation of a portfolio for one calendar date.
type NetWorthSnapshot struct {
	ID               string                       `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	PortfolioID      string                       `json:"portfolio_id" gorm:"column:portfolio_id;type:varchar(36);not null;uniqueIndex:idx_snapshots_portfolio_date,priority:1"`
	SnapshotDate     time.Time                    `json:"snapshot_date" gorm:"column:snapshot_date;type:date;not null;uniqueIndex:idx_snapshots_portfolio_date,priority:2"`
	TotalAssets      decimal.Decimal              `json:"total_assets" gorm:"column:total_assets;type:decimal(30,2);not null"`
	TotalLiabilities decimal.Decimal              `json:"total_liabilities" gorm:"column:total_liabilities;type:decimal(30,2);not null"`
	NetWorth         decimal.Decimal              `json:"net_worth" gorm:"column:net_worth;type:decimal(30,2);not null"`
	Breakdown        map[string]CategoryBreakdown `json:"breakdown" gorm:"column:breakdown;type:text;serializer:json"`
	CreatedAt        time.Time                    `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                    `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (NetWorthSnapshot) TableName() string {
	return "net_worth_snapshots"
}

func (s *NetWorthSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type CategoryBreakdown struct {
	Total decimal.Decimal `json:"total"`
	Items []BreakdownItem `json:"items"`
}

type BreakdownItem struct {
	Symbol string          `json:"symbol"`
	Value  decimal.Decimal `json:"value"`
}

// NetWorthPoint is one day of a reconstructed series.
type NetWorthPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

const (
	HistorySourceSnapshots = "snapshots"
	HistorySourceReplay    = "replay"
)

type NetWorthHistory struct {
	PortfolioID string          `json:"portfolio_id"`
	Days        int             `json:"days"`
	Source      string          `json:"source"`
	Points      []NetWorthPoint `json:"points"`
}
