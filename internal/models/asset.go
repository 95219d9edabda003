package models

import "time"

// AssetClass is the slug that selects a quote provider and a currency rule.
type AssetClass string

const (
	AssetClassCrypto    AssetClass = "crypto"
	AssetClassUSStock   AssetClass = "us_stock"
	AssetClassTWStock   AssetClass = "tw_stock"
	AssetClassFiat      AssetClass = "fiat"
	AssetClassLiability AssetClass = "liability"

	// AssetClassAll is only meaningful for symbol search.
	AssetClassAll AssetClass = "all"
)

// AssetClasses lists the concrete classes in display order.
var AssetClasses = []AssetClass{
	AssetClassCrypto,
	AssetClassUSStock,
	AssetClassTWStock,
	AssetClassFiat,
	AssetClassLiability,
}

func (c AssetClass) Valid() bool {
	for _, known := range AssetClasses {
		if c == known {
			return true
		}
	}
	return false
}

// IsStatic reports whether the class is priced at a constant 1.
func (c AssetClass) IsStatic() bool {
	return c == AssetClassFiat || c == AssetClassLiability
}

// IsUSDDenominated reports whether quotes for the class come back in USD and
// need the USD to settlement conversion.
func (c AssetClass) IsUSDDenominated() bool {
	return c == AssetClassCrypto || c == AssetClassUSStock
}

// Timeframe is the window of a historical price request.
type Timeframe string

const (
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe6M Timeframe = "6M"
	Timeframe1Y Timeframe = "1Y"
	Timeframe5Y Timeframe = "5Y"
)

func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1W, Timeframe1M, Timeframe3M, Timeframe6M, Timeframe1Y, Timeframe5Y:
		return true
	}
	return false
}

// Days is the calendar length of the timeframe.
func (tf Timeframe) Days() int {
	switch tf {
	case Timeframe1W:
		return 7
	case Timeframe1M:
		return 30
	case Timeframe3M:
		return 90
	case Timeframe6M:
		return 180
	case Timeframe1Y:
		return 365
	case Timeframe5Y:
		return 1825
	}
	return 30
}

// TimeframeForDays picks the smallest history window that covers a backtest of n days.
func TimeframeForDays(days int) Timeframe {
	switch {
	case days <= 30:
		return Timeframe1M
	case days <= 90:
		return Timeframe3M
	case days <= 365:
		return Timeframe1Y
	default:
		return Timeframe5Y
	}
}

// DateOf truncates t to its calendar date, expressed as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
