package handlers

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/services"
)

type mockPriceService struct {
	quotes      map[string]*models.Quote
	errs        map[string]error
	searchClass models.AssetClass
}

func newMockPriceService() *mockPriceService {
	return &mockPriceService{quotes: map[string]*models.Quote{}, errs: map[string]error{}}
}

func (m *mockPriceService) set(symbol, currency string, price int64) {
	m.quotes[symbol] = &models.Quote{Symbol: symbol, Price: decimal.NewFromInt(price), Currency: currency, Source: "mock"}
}

func (m *mockPriceService) GetPrice(_ context.Context, symbol string, class models.AssetClass, _ bool) (*models.Quote, error) {
	symbol = strings.ToUpper(symbol)
	if class.IsStatic() {
		return &models.Quote{Symbol: symbol, Price: decimal.NewFromInt(1), Currency: "TWD", Source: models.SourceStatic}, nil
	}
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	if q, ok := m.quotes[symbol]; ok {
		return q, nil
	}
	return &models.Quote{Symbol: symbol, Source: models.SourceError}, nil
}

func (m *mockPriceService) GetPricesBatch(ctx context.Context, items []models.PriceRequest, force bool) map[string]*models.Quote {
	out := make(map[string]*models.Quote, len(items))
	for _, it := range items {
		q, err := m.GetPrice(ctx, it.Symbol, it.AssetClass, force)
		if err != nil {
			q = &models.Quote{Symbol: it.Symbol, Source: models.SourceError}
		}
		out[strings.ToUpper(it.Symbol)] = q
	}
	return out
}

func (m *mockPriceService) GetHistoricalPrices(context.Context, string, models.AssetClass, models.Timeframe) ([]models.HistoricalPoint, error) {
	return nil, nil
}

func (m *mockPriceService) SearchSymbol(_ context.Context, query string, class models.AssetClass) ([]models.SearchResult, error) {
	m.searchClass = class
	return []models.SearchResult{{Symbol: strings.ToUpper(query), AssetClass: models.AssetClassUSStock}}, nil
}

func (m *mockPriceService) GetMarketDetail(_ context.Context, symbol string, _ models.AssetClass) (*models.MarketDetail, error) {
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	return &models.MarketDetail{Symbol: symbol, Price: decimal.NewFromInt(1), Source: "mock"}, nil
}

var _ services.PriceService = (*mockPriceService)(nil)

type mockExchangeRates struct {
	rate decimal.Decimal
}

func (m *mockExchangeRates) USDRate(context.Context, bool) decimal.Decimal { return m.rate }
func (m *mockExchangeRates) SettlementCurrency() string                   { return "TWD" }

var _ services.ExchangeRateService = (*mockExchangeRates)(nil)
