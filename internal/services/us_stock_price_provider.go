package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/lookup"
	yfmodels "github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

const (
	yahooName      = "yahoo"
	yahooSearchCap = 10
)

type yahooQuote struct {
	Price         float64
	PreviousClose float64
	Name          string
	Exchange      string
}

type yahooBar struct {
	Date                   time.Time
	Open, High, Low, Close float64
	Volume                 float64
}

// yahooClient is the slice of go-yfinance the provider needs.
type yahooClient interface {
	Quote(symbol string) (*yahooQuote, error)
	History(symbol, period string) ([]yahooBar, error)
	Search(query string, limit int) ([]string, error)
}

// YahooPriceProvider serves US equities, ETFs and Yahoo FX pairs such as "TWD=X".
type YahooPriceProvider struct {
	client yahooClient
	now    func() time.Time
}

func NewYahooPriceProvider() *YahooPriceProvider {
	return &YahooPriceProvider{client: goYFinanceClient{}, now: time.Now}
}

func (p *YahooPriceProvider) Name() string {
	return yahooName
}

func (p *YahooPriceProvider) GetCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	yq, err := runBlocking(ctx, func() (*yahooQuote, error) { return p.client.Quote(symbol) })
	if err != nil {
		return nil, classifyYahooError(symbol, err)
	}
	if yq == nil || yq.Price <= 0 {
		return nil, apperrors.NewNotFound("symbol", symbol)
	}

	price := decimal.NewFromFloat(yq.Price)
	q := &models.Quote{
		Symbol:    symbol,
		Price:     price,
		Currency:  yahooCurrency(symbol),
		Timestamp: p.now().UTC(),
		Source:    yahooName,
	}
	if yq.PreviousClose > 0 {
		prev := decimal.NewFromFloat(yq.PreviousClose)
		change := price.Sub(prev).Round(8)
		pct := change.Div(prev).Mul(hundred).Round(4)
		q.Change24h = &change
		q.ChangePercent24h = &pct
	}
	return q, nil
}

func (p *YahooPriceProvider) GetHistoricalPrices(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.HistoricalPoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	bars, err := runBlocking(ctx, func() ([]yahooBar, error) { return p.client.History(symbol, yahooPeriod(timeframe)) })
	if err != nil {
		return nil, classifyYahooError(symbol, err)
	}

	points := make([]models.HistoricalPoint, 0, len(bars))
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		volume := decimal.NewFromFloat(b.Volume)
		points = append(points, models.HistoricalPoint{
			Symbol: symbol,
			Date:   b.Date.UTC(),
			Open:   decimal.NewFromFloat(b.Open),
			High:   decimal.NewFromFloat(b.High),
			Low:    decimal.NewFromFloat(b.Low),
			Close:  decimal.NewFromFloat(b.Close),
			Volume: &volume,
		})
	}
	return points, nil
}

func (p *YahooPriceProvider) SearchSymbol(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	symbols, err := runBlocking(ctx, func() ([]string, error) { return p.client.Search(query, yahooSearchCap) })
	if err != nil {
		return nil, apperrors.NewProviderError(yahooName, query, err)
	}

	results := make([]models.SearchResult, 0, len(symbols))
	for _, s := range symbols {
		if len(results) == yahooSearchCap {
			break
		}
		results = append(results, models.SearchResult{
			Symbol:     s,
			Name:       s,
			AssetClass: models.AssetClassUSStock,
			Type:       "equity",
		})
	}
	return results, nil
}

// GetMarketDetail uses two years of daily bars so the one-year change has a base.
func (p *YahooPriceProvider) GetMarketDetail(ctx context.Context, symbol string) (*models.MarketDetail, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	closes, err := p.dailyCloses(ctx, symbol, "2y")
	if err != nil {
		return nil, err
	}
	detail := buildMarketDetail(symbol, yahooCurrency(symbol), yahooName, closes, tradingDayOffsets)
	if detail == nil {
		return nil, apperrors.NewNotFound("symbol", symbol)
	}
	return detail, nil
}

func (p *YahooPriceProvider) dailyCloses(ctx context.Context, symbol, period string) ([]decimal.Decimal, error) {
	bars, err := runBlocking(ctx, func() ([]yahooBar, error) { return p.client.History(symbol, period) })
	if err != nil {
		return nil, classifyYahooError(symbol, err)
	}
	closes := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, decimal.NewFromFloat(b.Close))
		}
	}
	return closes, nil
}

func yahooPeriod(tf models.Timeframe) string {
	switch tf {
	case models.Timeframe1W:
		return "5d"
	case models.Timeframe3M:
		return "3mo"
	case models.Timeframe6M:
		return "6mo"
	case models.Timeframe1Y:
		return "1y"
	case models.Timeframe5Y:
		return "5y"
	default:
		return "1mo"
	}
}

// yahooCurrency infers the quote currency from the Yahoo symbol convention:
// "TWD=X" is USD/TWD priced in TWD, ".TW"/".TWO" are Taiwan listings.
func yahooCurrency(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, "=X") && len(symbol) >= 5:
		return symbol[:3]
	case strings.HasSuffix(symbol, ".TW"), strings.HasSuffix(symbol, ".TWO"):
		return "TWD"
	default:
		return "USD"
	}
}

func classifyYahooError(symbol string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderError(yahooName, symbol, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no data") || strings.Contains(msg, "404") {
		return apperrors.NewNotFound("symbol", symbol)
	}
	return apperrors.NewProviderError(yahooName, symbol, err)
}

// runBlocking runs a call that does not take a context and stops waiting
// when ctx is done. The call itself runs to completion in the background.
func runBlocking[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// goYFinanceClient adapts github.com/wnjoon/go-yfinance.
type goYFinanceClient struct{}

func (goYFinanceClient) Quote(symbol string) (*yahooQuote, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	out := &yahooQuote{}
	quote, quoteErr := t.Quote()
	if quoteErr == nil && quote != nil {
		switch {
		case quote.RegularMarketPrice > 0:
			out.Price = quote.RegularMarketPrice
		case quote.PostMarketPrice > 0:
			out.Price = quote.PostMarketPrice
		case quote.PreMarketPrice > 0:
			out.Price = quote.PreMarketPrice
		}
	}

	info, infoErr := t.Info()
	if infoErr == nil && info != nil {
		if out.Price <= 0 && info.CurrentPrice > 0 {
			out.Price = info.CurrentPrice
		}
		out.PreviousClose = info.RegularMarketPreviousClose
		out.Name = info.ShortName
		if out.Name == "" {
			out.Name = info.LongName
		}
		out.Exchange = info.Exchange
	}

	if out.Price <= 0 && quoteErr != nil {
		return nil, quoteErr
	}
	return out, nil
}

func (goYFinanceClient) History(symbol, period string) ([]yahooBar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	bars, err := t.History(yfmodels.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices: %w", err)
	}

	out := make([]yahooBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, yahooBar{
			Date:   b.Date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return out, nil
}

func (goYFinanceClient) Search(query string, limit int) ([]string, error) {
	client, err := lookup.New(query)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup client: %w", err)
	}
	defer client.Close()

	results, err := client.Stock(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	symbols := make([]string, 0, len(results))
	for _, r := range results {
		symbols = append(symbols, r.Symbol)
	}
	return symbols, nil
}
