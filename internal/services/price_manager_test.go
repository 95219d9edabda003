package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/networth/internal/cache"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

type managerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *managerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *managerClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type managerFixture struct {
	manager *PriceManager
	stocks  *fakeProvider
	crypto  *fakeProvider
	clock   *managerClock
	delays  int32
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		stocks: newFakeProvider("yahoo"),
		crypto: newFakeProvider("coingecko"),
		clock:  &managerClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	local := cache.NewMemoryStore().WithClock(f.clock.Now)
	quoteCache := cache.NewQuoteCache(nil, local, 24*time.Hour, nil)
	f.manager = NewPriceManager(map[models.AssetClass]PriceProvider{
		models.AssetClassUSStock: f.stocks,
		models.AssetClassCrypto:  f.crypto,
	}, quoteCache, PriceManagerConfig{
		CacheTTL:           300 * time.Second,
		BatchDelay:         500 * time.Millisecond,
		FetchTimeout:       5 * time.Second,
		SettlementCurrency: "TWD",
	}, nil)
	f.manager.sleep = func(ctx context.Context, d time.Duration) error {
		atomic.AddInt32(&f.delays, 1)
		return ctx.Err()
	}
	f.manager.now = f.clock.Now
	return f
}

func TestPriceManagerStaticClassesNeverCallOut(t *testing.T) {
	f := newManagerFixture(t)

	for _, class := range []models.AssetClass{models.AssetClassFiat, models.AssetClassLiability} {
		q, err := f.manager.GetPrice(context.Background(), "twd", class, false)
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, "TWD", q.Currency)
		assert.Equal(t, models.SourceStatic, q.Source)
	}
	assert.Zero(t, f.stocks.callCount("TWD"))
}

func TestPriceManagerServesFreshCache(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.withQuote("AAPL", 190.5)
	ctx := context.Background()

	_, err := f.manager.GetPrice(ctx, "aapl", models.AssetClassUSStock, false)
	require.NoError(t, err)
	_, err = f.manager.GetPrice(ctx, "AAPL", models.AssetClassUSStock, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.stocks.callCount("AAPL"))

	_, err = f.manager.GetPrice(ctx, "AAPL", models.AssetClassUSStock, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.stocks.callCount("AAPL"), "force refresh bypasses the cache")

	f.clock.Advance(301 * time.Second)
	_, err = f.manager.GetPrice(ctx, "AAPL", models.AssetClassUSStock, false)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stocks.callCount("AAPL"), "expired entry triggers a refetch")
}

func TestPriceManagerUnknownClassIsValidationError(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.GetPrice(context.Background(), "2330", models.AssetClassTWStock, false)
	assert.True(t, apperrors.IsValidation(err))
}

func runConcurrentGets(t *testing.T, f *managerFixture, symbol string, n int) ([]*models.Quote, []error) {
	t.Helper()
	f.stocks.gate = make(chan struct{})
	f.stocks.entered = make(chan struct{}, 1)

	quotes := make([]*models.Quote, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			quotes[i], errs[i] = f.manager.GetPrice(context.Background(), symbol, models.AssetClassUSStock, false)
		}()
	}
	close(start)

	select {
	case <-f.stocks.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never called")
	}
	// Give the remaining callers time to join the in-flight fetch.
	time.Sleep(100 * time.Millisecond)
	close(f.stocks.gate)
	wg.Wait()
	return quotes, errs
}

func TestPriceManagerSingleFlight(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.withQuote("AAPL", 190.5)

	quotes, errs := runConcurrentGets(t, f, "AAPL", 20)

	assert.Equal(t, 1, f.stocks.callCount("AAPL"))
	for i := range quotes {
		require.NoError(t, errs[i])
		assert.Same(t, quotes[0], quotes[i])
	}
}

func TestPriceManagerSingleFlightPropagatesError(t *testing.T) {
	f := newManagerFixture(t)
	upstream := apperrors.NewProviderError("yahoo", "AAPL", errors.New("connection reset"))
	f.stocks.errs["AAPL"] = upstream

	_, errs := runConcurrentGets(t, f, "AAPL", 10)

	assert.Equal(t, 1, f.stocks.callCount("AAPL"))
	for _, err := range errs {
		assert.Same(t, upstream, err)
	}

	// No stuck in-flight entry: the next call reaches the provider again.
	f.stocks.gate = nil
	_, err := f.manager.GetPrice(context.Background(), "AAPL", models.AssetClassUSStock, false)
	require.Error(t, err)
	assert.Equal(t, 2, f.stocks.callCount("AAPL"))
}

func TestPriceManagerWaiterCanAbandonFetch(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.withQuote("AAPL", 190.5)
	f.stocks.gate = make(chan struct{})
	f.stocks.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.GetPrice(ctx, "AAPL", models.AssetClassUSStock, false)
		done <- err
	}()
	<-f.stocks.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The detached fetch still completes and fills the cache.
	close(f.stocks.gate)
	require.Eventually(t, func() bool {
		_, hit := f.manager.cache.Get(context.Background(), "yahoo", "AAPL")
		return hit
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPriceManagerBatchIsolatesFailures(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.withQuote("AAPL", 190.5).withQuote("TSLA", 250)
	f.stocks.errs["MSFT"] = apperrors.NewProviderError("yahoo", "MSFT", errors.New("timeout"))

	got := f.manager.GetPricesBatch(context.Background(), []models.PriceRequest{
		{Symbol: "AAPL", AssetClass: models.AssetClassUSStock},
		{Symbol: "MSFT", AssetClass: models.AssetClassUSStock},
		{Symbol: "TSLA", AssetClass: models.AssetClassUSStock},
	}, false)

	require.Len(t, got, 3)
	assert.True(t, got["AAPL"].Price.Equal(decimal.NewFromFloat(190.5)))
	assert.True(t, got["TSLA"].Price.Equal(decimal.NewFromInt(250)))
	assert.True(t, got["MSFT"].Price.IsZero())
	assert.Equal(t, models.SourceError, got["MSFT"].Source)
	assert.Equal(t, "USD", got["MSFT"].Currency)
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.delays), "delay only between upstream calls")
}

func TestPriceManagerBatchFallsBackToStale(t *testing.T) {
	f := newManagerFixture(t)
	f.crypto.withQuote("BTC", 65000)
	ctx := context.Background()

	_, err := f.manager.GetPrice(ctx, "BTC", models.AssetClassCrypto, false)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	f.crypto.errs["BTC"] = apperrors.NewProviderError("coingecko", "BTC", errors.New("429"))

	got := f.manager.GetPricesBatch(ctx, []models.PriceRequest{
		{Symbol: "BTC", AssetClass: models.AssetClassCrypto},
		{Symbol: "CASH", AssetClass: models.AssetClassFiat},
	}, false)

	require.Len(t, got, 2)
	assert.True(t, got["BTC"].Price.Equal(decimal.NewFromInt(65000)))
	assert.Equal(t, "coingecko", got["BTC"].Source)
	assert.Equal(t, models.SourceStatic, got["CASH"].Source)
	assert.Equal(t, 2, f.crypto.callCount("BTC"))
}

func TestPriceManagerBatchUsesFreshCacheWithoutDelay(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.withQuote("AAPL", 190.5).withQuote("TSLA", 250)
	ctx := context.Background()
	items := []models.PriceRequest{
		{Symbol: "AAPL", AssetClass: models.AssetClassUSStock},
		{Symbol: "TSLA", AssetClass: models.AssetClassUSStock},
		{Symbol: "aapl", AssetClass: models.AssetClassUSStock},
	}

	f.manager.GetPricesBatch(ctx, items, false)
	f.manager.GetPricesBatch(ctx, items, false)

	assert.Equal(t, 1, f.stocks.callCount("AAPL"))
	assert.Equal(t, 1, f.stocks.callCount("TSLA"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.delays))
}

func TestPriceManagerBatchUnknownClassUsesSettlementCurrency(t *testing.T) {
	f := newManagerFixture(t)
	got := f.manager.GetPricesBatch(context.Background(), []models.PriceRequest{
		{Symbol: "2330", AssetClass: models.AssetClassTWStock},
	}, false)
	require.Contains(t, got, "2330")
	assert.Equal(t, models.SourceError, got["2330"].Source)
	assert.Equal(t, "TWD", got["2330"].Currency)
}

func TestPriceManagerSearchAllIgnoresFailingProvider(t *testing.T) {
	f := newManagerFixture(t)
	f.crypto.search = []models.SearchResult{{Symbol: "BTC", Name: "Bitcoin", AssetClass: models.AssetClassCrypto}}
	f.stocks.searchErr = apperrors.NewProviderError("yahoo", "", errors.New("down"))

	got, err := f.manager.SearchSymbol(context.Background(), "bit", models.AssetClassAll)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)

	_, err = f.manager.SearchSymbol(context.Background(), "app", models.AssetClassUSStock)
	assert.True(t, apperrors.IsProviderError(err))
}

func TestPriceManagerSearchAllKeepsProviderOrder(t *testing.T) {
	f := newManagerFixture(t)
	f.crypto.search = []models.SearchResult{{Symbol: "A", AssetClass: models.AssetClassCrypto}}
	f.stocks.search = []models.SearchResult{{Symbol: "B", AssetClass: models.AssetClassUSStock}}

	got, err := f.manager.SearchSymbol(context.Background(), "x", models.AssetClassAll)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Symbol)
	assert.Equal(t, "B", got[1].Symbol)
}

func TestPriceManagerHistoricalPrices(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.history["AAPL"] = []models.HistoricalPoint{{Symbol: "AAPL", Close: decimal.NewFromInt(1)}}
	ctx := context.Background()

	got, err := f.manager.GetHistoricalPrices(ctx, "aapl", models.AssetClassUSStock, models.Timeframe1M)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.manager.GetHistoricalPrices(ctx, "CASH", models.AssetClassFiat, models.Timeframe1M)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.manager.GetHistoricalPrices(ctx, "AAPL", models.AssetClassUSStock, models.Timeframe("2D"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestPriceManagerMarketDetailCapability(t *testing.T) {
	stocks := &fakeDetailedProvider{newFakeProvider("yahoo")}
	crypto := newFakeProvider("coingecko")
	m := NewPriceManager(map[models.AssetClass]PriceProvider{
		models.AssetClassUSStock: stocks,
		models.AssetClassCrypto:  crypto,
	}, nil, PriceManagerConfig{}, nil)

	detail, err := m.GetMarketDetail(context.Background(), "aapl", models.AssetClassUSStock)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", detail.Symbol)

	_, err = m.GetMarketDetail(context.Background(), "BTC", models.AssetClassCrypto)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPriceManagerCloseReleasesProviders(t *testing.T) {
	f := newManagerFixture(t)
	f.stocks.closeErr = errors.New("stocks")
	f.crypto.closeErr = errors.New("crypto")

	err := f.manager.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stocks")
	assert.Contains(t, err.Error(), "crypto")
	assert.True(t, f.stocks.closed)
	assert.True(t, f.crypto.closed)
}
