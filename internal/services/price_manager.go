package services

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tropicaldog17/networth/internal/cache"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
)

// PriceManagerConfig tunes caching and upstream pacing.
type PriceManagerConfig struct {
	CacheTTL           time.Duration
	BatchDelay         time.Duration
	FetchTimeout       time.Duration
	SettlementCurrency string
}

func (c PriceManagerConfig) withDefaults() PriceManagerConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300 * time.Second
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.SettlementCurrency == "" {
		c.SettlementCurrency = "TWD"
	}
	return c
}

// PriceManager routes (symbol, asset class) lookups to providers behind the
// quote cache. Concurrent misses for the same provider and symbol share one
// upstream call.
type PriceManager struct {
	providers map[models.AssetClass]PriceProvider
	order     []models.AssetClass
	static    *StaticPriceProvider
	cache     *cache.QuoteCache
	cfg       PriceManagerConfig
	group     singleflight.Group
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewPriceManager takes ownership of the providers; Close releases them.
// Static classes (fiat, liability) are always served by a StaticPriceProvider.
func NewPriceManager(providers map[models.AssetClass]PriceProvider, quoteCache *cache.QuoteCache, cfg PriceManagerConfig, log *zap.Logger) *PriceManager {
	cfg = cfg.withDefaults()
	if quoteCache == nil {
		quoteCache = cache.NewQuoteCache(nil, nil, 0, log)
	}
	m := &PriceManager{
		providers: make(map[models.AssetClass]PriceProvider, len(providers)),
		static:    NewStaticPriceProvider(cfg.SettlementCurrency),
		cache:     quoteCache,
		cfg:       cfg,
		logger:    logger.OrNop(log),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, class := range models.AssetClasses {
		if class.IsStatic() {
			continue
		}
		if p, ok := providers[class]; ok && p != nil {
			m.providers[class] = p
			m.order = append(m.order, class)
		}
	}
	return m
}

// GetPrice returns the quote for symbol. Static classes never touch the cache
// or the network. Otherwise the fresh cache is consulted unless forceRefresh.
func (m *PriceManager) GetPrice(ctx context.Context, symbol string, class models.AssetClass, forceRefresh bool) (*models.Quote, error) {
	symbol = normalizeSymbol(symbol)
	if class.IsStatic() {
		return m.static.GetCurrentPrice(ctx, symbol)
	}
	provider, ok := m.providers[class]
	if !ok {
		return nil, &apperrors.ErrValidation{Field: "asset_class", Message: "no quote provider for " + string(class)}
	}

	if !forceRefresh {
		if q, hit := m.cache.Get(ctx, provider.Name(), symbol); hit {
			return q, nil
		}
	}
	return m.fetch(ctx, provider, symbol)
}

// fetch calls the provider through the single-flight group. The upstream call
// runs on a context detached from the first caller, so one caller giving up
// does not fail the others; each caller still stops waiting when its own
// context ends.
func (m *PriceManager) fetch(ctx context.Context, provider PriceProvider, symbol string) (*models.Quote, error) {
	key := provider.Name() + ":" + symbol
	ch := m.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()

		q, err := provider.GetCurrentPrice(fetchCtx, symbol)
		if err != nil {
			return nil, err
		}
		m.cache.Set(fetchCtx, provider.Name(), symbol, q, m.cfg.CacheTTL)
		return q, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Quote), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetPricesBatch fetches items one by one, pausing BatchDelay between upstream
// calls. A failed item falls back to its stale cache entry, then to a zero
// quote with source "error". The result has one entry per distinct symbol.
func (m *PriceManager) GetPricesBatch(ctx context.Context, items []models.PriceRequest, forceRefresh bool) map[string]*models.Quote {
	out := make(map[string]*models.Quote, len(items))
	upstreamCalls := 0

	for _, item := range items {
		symbol := normalizeSymbol(item.Symbol)
		if _, seen := out[symbol]; seen {
			continue
		}
		if item.AssetClass.IsStatic() {
			out[symbol], _ = m.static.GetCurrentPrice(ctx, symbol)
			continue
		}
		provider, ok := m.providers[item.AssetClass]
		if !ok {
			m.logger.Warn("no quote provider for asset class",
				zap.String("symbol", symbol), zap.String("asset_class", string(item.AssetClass)))
			out[symbol] = m.errorQuote(symbol, item.AssetClass)
			continue
		}

		if !forceRefresh {
			if q, hit := m.cache.Get(ctx, provider.Name(), symbol); hit {
				out[symbol] = q
				continue
			}
		}

		if upstreamCalls > 0 {
			if err := m.sleep(ctx, m.cfg.BatchDelay); err != nil {
				m.logger.Debug("batch pacing interrupted", zap.Error(err))
			}
		}
		upstreamCalls++

		q, err := m.fetch(ctx, provider, symbol)
		if err == nil {
			out[symbol] = q
			continue
		}

		if stale, hit := m.cache.GetStale(ctx, provider.Name(), symbol); hit {
			m.logger.Warn("quote fetch failed, serving stale cache",
				zap.String("symbol", symbol), zap.String("provider", provider.Name()), zap.Error(err))
			out[symbol] = stale
			continue
		}
		m.logger.Warn("quote fetch failed with no stale cache",
			zap.String("symbol", symbol), zap.String("provider", provider.Name()), zap.Error(err))
		out[symbol] = m.errorQuote(symbol, item.AssetClass)
	}
	return out
}

// GetHistoricalPrices is not cached. Classes without a provider yield an empty series.
func (m *PriceManager) GetHistoricalPrices(ctx context.Context, symbol string, class models.AssetClass, timeframe models.Timeframe) ([]models.HistoricalPoint, error) {
	if !timeframe.Valid() {
		return nil, &apperrors.ErrValidation{Field: "timeframe", Message: "unknown timeframe " + string(timeframe)}
	}
	provider, ok := m.providers[class]
	if !ok {
		return []models.HistoricalPoint{}, nil
	}
	return provider.GetHistoricalPrices(ctx, normalizeSymbol(symbol), timeframe)
}

// SearchSymbol searches one class, or every provider concurrently for class
// "all". In the fan-out a failing provider contributes no results.
func (m *PriceManager) SearchSymbol(ctx context.Context, query string, class models.AssetClass) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	if class != models.AssetClassAll {
		provider, ok := m.providers[class]
		if !ok {
			return []models.SearchResult{}, nil
		}
		return provider.SearchSymbol(ctx, query)
	}

	perProvider := make([][]models.SearchResult, len(m.order))
	var g errgroup.Group
	for i, c := range m.order {
		provider := m.providers[c]
		g.Go(func() error {
			res, err := provider.SearchSymbol(ctx, query)
			if err != nil {
				m.logger.Warn("symbol search failed",
					zap.String("provider", provider.Name()), zap.String("query", query), zap.Error(err))
				return nil
			}
			perProvider[i] = res
			return nil
		})
	}
	_ = g.Wait()

	results := []models.SearchResult{}
	for _, res := range perProvider {
		results = append(results, res...)
	}
	return results, nil
}

// GetMarketDetail serves providers that implement DetailedQuoteProvider.
func (m *PriceManager) GetMarketDetail(ctx context.Context, symbol string, class models.AssetClass) (*models.MarketDetail, error) {
	symbol = normalizeSymbol(symbol)
	provider, ok := m.providers[class]
	if !ok {
		return nil, apperrors.NewNotFound("market detail", symbol)
	}
	detailed, ok := provider.(DetailedQuoteProvider)
	if !ok {
		return nil, apperrors.NewNotFound("market detail", symbol)
	}
	return detailed.GetMarketDetail(ctx, symbol)
}

// Close releases provider resources.
func (m *PriceManager) Close() error {
	var err error
	for _, c := range m.order {
		if closer, ok := m.providers[c].(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}

func (m *PriceManager) errorQuote(symbol string, class models.AssetClass) *models.Quote {
	currency := m.cfg.SettlementCurrency
	if class.IsUSDDenominated() {
		currency = "USD"
	}
	return &models.Quote{
		Symbol:    symbol,
		Price:     decimal.Zero,
		Currency:  currency,
		Timestamp: m.now().UTC(),
		Source:    models.SourceError,
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
