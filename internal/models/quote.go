package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceStatic = "static"
	SourceError  = "error"
)

// Quote is a point-in-time price. A refresh produces a new Quote; callers must not mutate one.
type Quote struct {
	Symbol           string           `json:"symbol"`
	Price            decimal.Decimal  `json:"price"`
	Currency         string           `json:"currency"`
	Timestamp        time.Time        `json:"timestamp"`
	Change24h        *decimal.Decimal `json:"change_24h,omitempty"`
	ChangePercent24h *decimal.Decimal `json:"change_percent_24h,omitempty"`
	Source           string           `json:"source"`
}

// HistoricalPoint is one daily OHLC bar.
type HistoricalPoint struct {
	Symbol string           `json:"symbol"`
	Date   time.Time        `json:"date"`
	Open   decimal.Decimal  `json:"open"`
	High   decimal.Decimal  `json:"high"`
	Low    decimal.Decimal  `json:"low"`
	Close  decimal.Decimal  `json:"close"`
	Volume *decimal.Decimal `json:"volume,omitempty"`
}

type SearchResult struct {
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	AssetClass AssetClass `json:"asset_class"`
	Exchange   string     `json:"exchange,omitempty"`
	Type       string     `json:"type,omitempty"`
}

// MarketDetail carries extended statistics. Percent changes are nil when the
// series is too short to cover the period.
type MarketDetail struct {
	Symbol    string           `json:"symbol"`
	Name      string           `json:"name,omitempty"`
	Price     decimal.Decimal  `json:"price"`
	Currency  string           `json:"currency"`
	High52w   *decimal.Decimal `json:"high_52w,omitempty"`
	Low52w    *decimal.Decimal `json:"low_52w,omitempty"`
	Change7d  *decimal.Decimal `json:"change_7d,omitempty"`
	Change14d *decimal.Decimal `json:"change_14d,omitempty"`
	Change30d *decimal.Decimal `json:"change_30d,omitempty"`
	Change60d *decimal.Decimal `json:"change_60d,omitempty"`
	Change1y  *decimal.Decimal `json:"change_1y,omitempty"`
	Source    string           `json:"source"`
}

// PriceRequest names one item of a batch quote request.
type PriceRequest struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
}
