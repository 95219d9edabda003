package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingValue is one priced position. Value is in the settlement currency.
type HoldingValue struct {
	Symbol        string          `json:"symbol"`
	Name          *string         `json:"name,omitempty"`
	AssetClass    AssetClass      `json:"asset_class"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	PriceSource   string          `json:"price_source"`
}

type PortfolioSummary struct {
	PortfolioID      string          `json:"portfolio_id"`
	Currency         string          `json:"currency"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	NetWorth         decimal.Decimal `json:"net_worth"`
	USDRate          decimal.Decimal `json:"usd_rate"`
	Holdings         []HoldingValue  `json:"holdings"`
	AsOf             time.Time       `json:"as_of"`
}

type AllocationEntry struct {
	Category AssetClass      `json:"category"`
	Value    decimal.Decimal `json:"value"`
	Percent  decimal.Decimal `json:"percent"`
}
