package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/networth/internal/db"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
)

// ---- Fakes for providers and services used in unit tests ----

type fakeProvider struct {
	name string

	mu        sync.Mutex
	quotes    map[string]*models.Quote
	errs      map[string]error
	history   map[string][]models.HistoricalPoint
	search    []models.SearchResult
	searchErr error
	calls     map[string]int
	closeErr  error
	closed    bool

	// gate, when set, blocks GetCurrentPrice until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:    name,
		quotes:  make(map[string]*models.Quote),
		errs:    make(map[string]error),
		history: make(map[string][]models.HistoricalPoint),
		calls:   make(map[string]int),
	}
}

func (p *fakeProvider) withQuote(symbol string, price float64) *fakeProvider {
	p.quotes[symbol] = &models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Currency:  "USD",
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Source:    p.name,
	}
	return p
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) GetCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	p.mu.Lock()
	p.calls[symbol]++
	gate, entered := p.gate, p.entered
	p.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.errs[symbol]; ok {
		return nil, err
	}
	if q, ok := p.quotes[symbol]; ok {
		return q, nil
	}
	return nil, apperrors.NewNotFound("symbol", symbol)
}

func (p *fakeProvider) GetHistoricalPrices(_ context.Context, symbol string, _ models.Timeframe) ([]models.HistoricalPoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history[symbol], nil
}

func (p *fakeProvider) SearchSymbol(_ context.Context, _ string) ([]models.SearchResult, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.search, nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakeProvider) callCount(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

type fakeDetailedProvider struct {
	*fakeProvider
}

func (p *fakeDetailedProvider) GetMarketDetail(_ context.Context, symbol string) (*models.MarketDetail, error) {
	return &models.MarketDetail{Symbol: symbol, Name: symbol, Price: decimal.NewFromInt(1), Currency: "USD", Source: p.name}, nil
}

// fakePriceService serves fixed quotes and series keyed by symbol.
type fakePriceService struct {
	mu         sync.Mutex
	quotes     map[string]*models.Quote
	history    map[string][]models.HistoricalPoint
	priceErr   map[string]error
	batchCalls int
}

func newFakePriceService() *fakePriceService {
	return &fakePriceService{
		quotes:   make(map[string]*models.Quote),
		history:  make(map[string][]models.HistoricalPoint),
		priceErr: make(map[string]error),
	}
}

func (f *fakePriceService) set(symbol, currency, source string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = &models.Quote{Symbol: symbol, Price: decimal.NewFromFloat(price), Currency: currency, Source: source}
}

func (f *fakePriceService) GetPrice(_ context.Context, symbol string, class models.AssetClass, _ bool) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if class.IsStatic() {
		return &models.Quote{Symbol: symbol, Price: decimal.NewFromInt(1), Currency: "TWD", Source: models.SourceStatic}, nil
	}
	if err, ok := f.priceErr[symbol]; ok {
		return nil, err
	}
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return nil, apperrors.NewNotFound("symbol", symbol)
}

func (f *fakePriceService) GetPricesBatch(ctx context.Context, items []models.PriceRequest, force bool) map[string]*models.Quote {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	out := make(map[string]*models.Quote, len(items))
	for _, item := range items {
		q, err := f.GetPrice(ctx, item.Symbol, item.AssetClass, force)
		if err != nil {
			q = &models.Quote{Symbol: item.Symbol, Price: decimal.Zero, Currency: "USD", Source: models.SourceError}
		}
		out[item.Symbol] = q
	}
	return out
}

func (f *fakePriceService) GetHistoricalPrices(_ context.Context, symbol string, _ models.AssetClass, _ models.Timeframe) ([]models.HistoricalPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[symbol], nil
}

func (f *fakePriceService) SearchSymbol(context.Context, string, models.AssetClass) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakePriceService) GetMarketDetail(_ context.Context, symbol string, _ models.AssetClass) (*models.MarketDetail, error) {
	return nil, apperrors.NewNotFound("market detail", symbol)
}

type fakeExchangeRates struct {
	rate decimal.Decimal
}

func (f *fakeExchangeRates) USDRate(context.Context, bool) decimal.Decimal { return f.rate }
func (f *fakeExchangeRates) SettlementCurrency() string                   { return "TWD" }

type fakeFXProvider struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fakeFXProvider) GetRate(context.Context, string, string) (decimal.Decimal, error) {
	f.calls++
	return f.rate, f.err
}

// ---- sqlite backed fixtures ----

type serviceFixture struct {
	database     *db.DB
	portfolios   repositories.PortfolioRepository
	transactions repositories.TransactionRepository
	positions    repositories.PositionRepository
	snapshots    repositories.SnapshotRepository
	ledger       LedgerService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	database, err := db.OpenSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	f := &serviceFixture{
		database:     database,
		portfolios:   repositories.NewPortfolioRepository(database),
		transactions: repositories.NewTransactionRepository(database),
		positions:    repositories.NewPositionRepository(database),
		snapshots:    repositories.NewSnapshotRepository(database),
	}
	f.ledger = NewLedgerService(f.portfolios, f.transactions, f.positions, f.snapshots, nil)
	return f
}

func (f *serviceFixture) portfolio(t *testing.T) *models.Portfolio {
	t.Helper()
	p := &models.Portfolio{Name: "Main", BaseCurrency: "TWD"}
	require.NoError(t, f.portfolios.Create(context.Background(), p))
	return p
}

func ledgerTx(portfolioID, symbol string, class models.AssetClass, typ models.TransactionType, qty, price, fee string, at time.Time) *models.Transaction {
	currency := "USD"
	if !class.IsUSDDenominated() {
		currency = "TWD"
	}
	return &models.Transaction{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		AssetClass:  class,
		Type:        typ,
		Quantity:    decimal.RequireFromString(qty),
		UnitPrice:   decimal.RequireFromString(price),
		Fee:         decimal.RequireFromString(fee),
		Currency:    currency,
		ExecutedAt:  at,
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 10, 0, 0, 0, time.UTC)
}
