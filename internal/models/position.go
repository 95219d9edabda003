package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position is the derived holding of one symbol in one portfolio.
// Quantity is negative only after an unmatched sell.
type Position struct {
	ID          string          `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	PortfolioID string          `json:"portfolio_id" gorm:"column:portfolio_id;type:varchar(36);not null;uniqueIndex:idx_positions_portfolio_symbol,priority:1"`
	Symbol      string          `json:"symbol" gorm:"column:symbol;type:varchar(32);not null;uniqueIndex:idx_positions_portfolio_symbol,priority:2"`
	Name        *string         `json:"name,omitempty" gorm:"column:name;type:varchar(255)"`
	AssetClass  AssetClass      `json:"asset_class" gorm:"column:asset_class;type:varchar(20);not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"column:quantity;type:decimal(30,18);not null"`
	AvgCost     decimal.Decimal `json:"avg_cost" gorm:"column:avg_cost;type:decimal(30,8);not null"`
	Currency    string          `json:"currency" gorm:"column:currency;type:varchar(3);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// SameState reports whether two positions carry the same derived values.
func (p *Position) SameState(o *Position) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.PortfolioID == o.PortfolioID &&
		p.Symbol == o.Symbol &&
		p.AssetClass == o.AssetClass &&
		p.Quantity.Equal(o.Quantity) &&
		p.AvgCost.Equal(o.AvgCost) &&
		p.Currency == o.Currency
}

// PositionRecalculation is the output of a ledger replay for one (portfolio, symbol)
// key, written back as a unit.
type PositionRecalculation struct {
	PortfolioID string
	Symbol      string
	// Position is nil when no transactions remain and the row must be removed.
	Position *Position
	// RealizedPnL maps transaction id to its recomputed realized P&L.
	RealizedPnL map[string]decimal.Decimal
}

// RecalculationSummary reports a bulk recompute.
type RecalculationSummary struct {
	Portfolios int `json:"portfolios"`
	Positions  int `json:"positions"`
	Failed     int `json:"failed"`
}
