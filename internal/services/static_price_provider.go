package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/networth/internal/models"
)

// StaticPriceProvider prices fiat cash and liabilities at 1 unit of the
// settlement currency. It never calls out and never fails.
type StaticPriceProvider struct {
	currency string
	now      func() time.Time
}

func NewStaticPriceProvider(settlementCurrency string) *StaticPriceProvider {
	return &StaticPriceProvider{currency: strings.ToUpper(settlementCurrency), now: time.Now}
}

func (p *StaticPriceProvider) Name() string {
	return models.SourceStatic
}

func (p *StaticPriceProvider) GetCurrentPrice(_ context.Context, symbol string) (*models.Quote, error) {
	return &models.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     decimal.NewFromInt(1),
		Currency:  p.currency,
		Timestamp: p.now().UTC(),
		Source:    models.SourceStatic,
	}, nil
}

func (p *StaticPriceProvider) GetHistoricalPrices(context.Context, string, models.Timeframe) ([]models.HistoricalPoint, error) {
	return nil, nil
}

func (p *StaticPriceProvider) SearchSymbol(context.Context, string) ([]models.SearchResult, error) {
	return nil, nil
}
