package services

import (
	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/networth/internal/models"
)

// detailOffsets are the look-back distances, in series points, of each change period.
type detailOffsets struct {
	week, twoWeeks, month, twoMonths, year int
}

var (
	// Equities trade about 252 days a year.
	tradingDayOffsets  = detailOffsets{week: 5, twoWeeks: 10, month: 22, twoMonths: 44, year: 252}
	calendarDayOffsets = detailOffsets{week: 7, twoWeeks: 14, month: 30, twoMonths: 60, year: 365}
)

var hundred = decimal.NewFromInt(100)

// buildMarketDetail derives 52-week range and period changes from daily closes
// ordered oldest first. It returns nil for an empty series.
func buildMarketDetail(symbol, currency, source string, closes []decimal.Decimal, offs detailOffsets) *models.MarketDetail {
	if len(closes) == 0 {
		return nil
	}
	last := closes[len(closes)-1]
	detail := &models.MarketDetail{
		Symbol:    symbol,
		Price:     last,
		Currency:  currency,
		Source:    source,
		Change7d:  percentChange(closes, offs.week),
		Change14d: percentChange(closes, offs.twoWeeks),
		Change30d: percentChange(closes, offs.month),
		Change60d: percentChange(closes, offs.twoMonths),
		Change1y:  percentChange(closes, offs.year),
	}

	window := closes
	if len(window) > offs.year+1 {
		window = window[len(window)-offs.year-1:]
	}
	high, low := window[0], window[0]
	for _, c := range window[1:] {
		if c.GreaterThan(high) {
			high = c
		}
		if c.LessThan(low) {
			low = c
		}
	}
	detail.High52w = &high
	detail.Low52w = &low
	return detail
}

func percentChange(closes []decimal.Decimal, offset int) *decimal.Decimal {
	if offset <= 0 || len(closes) <= offset {
		return nil
	}
	last := closes[len(closes)-1]
	past := closes[len(closes)-1-offset]
	if past.IsZero() {
		return nil
	}
	pct := last.Sub(past).Div(past).Mul(hundred).Round(2)
	return &pct
}
