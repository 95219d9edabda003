package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/networth/internal/models"
)

// PriceProvider is a quote source for one asset class.
// GetCurrentPrice fails with *errors.NotFoundError for unknown symbols and
// *errors.ProviderError for transport or parsing failures.
type PriceProvider interface {
	Name() string
	GetCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistoricalPrices(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.HistoricalPoint, error)
	SearchSymbol(ctx context.Context, query string) ([]models.SearchResult, error)
}

// DetailedQuoteProvider is the optional capability of serving extended market statistics.
type DetailedQuoteProvider interface {
	PriceProvider
	GetMarketDetail(ctx context.Context, symbol string) (*models.MarketDetail, error)
}

// FXProvider defines the interface for direct exchange rate lookups
type FXProvider interface {
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// PriceService routes quote requests to providers behind the quote cache.
type PriceService interface {
	GetPrice(ctx context.Context, symbol string, class models.AssetClass, forceRefresh bool) (*models.Quote, error)
	GetPricesBatch(ctx context.Context, items []models.PriceRequest, forceRefresh bool) map[string]*models.Quote
	GetHistoricalPrices(ctx context.Context, symbol string, class models.AssetClass, timeframe models.Timeframe) ([]models.HistoricalPoint, error)
	SearchSymbol(ctx context.Context, query string, class models.AssetClass) ([]models.SearchResult, error)
	GetMarketDetail(ctx context.Context, symbol string, class models.AssetClass) (*models.MarketDetail, error)
}

// ExchangeRateService converts USD denominated values into the settlement currency.
type ExchangeRateService interface {
	// USDRate never fails; it degrades to a fixed fallback rate.
	USDRate(ctx context.Context, forceRefresh bool) decimal.Decimal
	SettlementCurrency() string
}

// LedgerService defines the interface for ledger mutations and position derivation
type LedgerService interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, portfolioID string) ([]*models.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, update *models.TransactionUpdate) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	RecalculatePosition(ctx context.Context, portfolioID, symbol string) (*models.Position, error)
	RecalculateAllPortfolios(ctx context.Context) (*models.RecalculationSummary, error)
}

// PortfolioService defines the interface for portfolios and their live valuation
type PortfolioService interface {
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]*models.Portfolio, error)
	GetSummary(ctx context.Context, portfolioID string, forceRefresh bool) (*models.PortfolioSummary, error)
	GetAllocation(ctx context.Context, portfolioID string) ([]models.AllocationEntry, error)
	HeldSymbols(ctx context.Context) ([]models.PriceRequest, error)
}

// HistoryService defines the interface for the net-worth series and its snapshots
type HistoryService interface {
	GetHistory(ctx context.Context, portfolioID string, days int, forceRefresh bool) (*models.NetWorthHistory, error)
	SaveSnapshot(ctx context.Context, portfolioID string) (*models.NetWorthSnapshot, error)
}
