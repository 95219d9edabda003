package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

const (
	coinGeckoName       = "coingecko"
	coinGeckoDefaultURL = "https://api.coingecko.com/api/v3"
	coinGeckoSearchCap  = 10
)

// CoinGeckoPriceProvider serves crypto quotes in USD. The API key is optional.
type CoinGeckoPriceProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewCoinGeckoPriceProvider(baseURL, apiKey string) *CoinGeckoPriceProvider {
	if baseURL == "" {
		baseURL = coinGeckoDefaultURL
	}
	return &CoinGeckoPriceProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		now:        time.Now,
	}
}

func (p *CoinGeckoPriceProvider) Name() string {
	return coinGeckoName
}

func (p *CoinGeckoPriceProvider) GetCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(symbol)
	id := mapSymbolToCoinGeckoID(symbol)
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true", p.baseURL, url.QueryEscape(id))

	var payload map[string]struct {
		USD       *decimal.Decimal `json:"usd"`
		USDChange *decimal.Decimal `json:"usd_24h_change"`
	}
	if err := getJSON(ctx, p.httpClient, endpoint, p.header(), &payload); err != nil {
		return nil, p.wrap(symbol, err)
	}
	entry, ok := payload[id]
	if !ok || entry.USD == nil {
		return nil, apperrors.NewNotFound("symbol", symbol)
	}

	q := &models.Quote{
		Symbol:    symbol,
		Price:     *entry.USD,
		Currency:  "USD",
		Timestamp: p.now().UTC(),
		Source:    coinGeckoName,
	}
	// CoinGecko only reports a percentage; the absolute change is derived from it.
	if entry.USDChange != nil {
		pct := entry.USDChange.Round(4)
		q.ChangePercent24h = &pct
		base := decimal.NewFromInt(1).Add(entry.USDChange.Div(hundred))
		if !base.IsZero() {
			change := q.Price.Sub(q.Price.DivRound(base, 8)).Round(8)
			q.Change24h = &change
		}
	}
	return q, nil
}

func (p *CoinGeckoPriceProvider) GetHistoricalPrices(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.HistoricalPoint, error) {
	symbol = strings.ToUpper(symbol)
	id := mapSymbolToCoinGeckoID(symbol)
	endpoint := fmt.Sprintf("%s/coins/%s/ohlc?vs_currency=usd&days=%d", p.baseURL, url.PathEscape(id), timeframe.Days())

	// Each row is [timestamp_ms, open, high, low, close].
	var rows [][]decimal.Decimal
	if err := getJSON(ctx, p.httpClient, endpoint, p.header(), &rows); err != nil {
		return nil, p.wrap(symbol, err)
	}

	points := make([]models.HistoricalPoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		points = append(points, models.HistoricalPoint{
			Symbol: symbol,
			Date:   time.UnixMilli(row[0].IntPart()).UTC(),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
		})
	}
	return points, nil
}

func (p *CoinGeckoPriceProvider) SearchSymbol(ctx context.Context, query string) ([]models.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/search?query=%s", p.baseURL, url.QueryEscape(query))

	var payload struct {
		Coins []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
		} `json:"coins"`
	}
	if err := getJSON(ctx, p.httpClient, endpoint, p.header(), &payload); err != nil {
		return nil, p.wrap(query, err)
	}

	results := make([]models.SearchResult, 0, coinGeckoSearchCap)
	for _, c := range payload.Coins {
		if len(results) == coinGeckoSearchCap {
			break
		}
		results = append(results, models.SearchResult{
			Symbol:     strings.ToUpper(c.Symbol),
			Name:       c.Name,
			AssetClass: models.AssetClassCrypto,
			Type:       "crypto",
		})
	}
	return results, nil
}

// GetMarketDetail uses one year of daily closes; crypto trades every calendar day.
func (p *CoinGeckoPriceProvider) GetMarketDetail(ctx context.Context, symbol string) (*models.MarketDetail, error) {
	symbol = strings.ToUpper(symbol)
	id := mapSymbolToCoinGeckoID(symbol)
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=365&interval=daily", p.baseURL, url.PathEscape(id))

	var payload struct {
		Prices [][]decimal.Decimal `json:"prices"`
	}
	if err := getJSON(ctx, p.httpClient, endpoint, p.header(), &payload); err != nil {
		return nil, p.wrap(symbol, err)
	}

	closes := make([]decimal.Decimal, 0, len(payload.Prices))
	for _, row := range payload.Prices {
		if len(row) >= 2 {
			closes = append(closes, row[1])
		}
	}
	detail := buildMarketDetail(symbol, "USD", coinGeckoName, closes, calendarDayOffsets)
	if detail == nil {
		return nil, apperrors.NewNotFound("symbol", symbol)
	}
	return detail, nil
}

func (p *CoinGeckoPriceProvider) header() http.Header {
	h := http.Header{}
	if p.apiKey != "" {
		h.Set("x-cg-demo-api-key", p.apiKey)
	}
	return h
}

func (p *CoinGeckoPriceProvider) wrap(symbol string, err error) error {
	var status *httpStatusError
	if errors.As(err, &status) && status.code == http.StatusNotFound {
		return apperrors.NewNotFound("symbol", symbol)
	}
	return apperrors.NewProviderError(coinGeckoName, symbol, err)
}

// mapSymbolToCoinGeckoID resolves a ticker to a CoinGecko coin id. Unknown
// tickers fall back to the lowercase symbol, which is the id of many smaller coins.
func mapSymbolToCoinGeckoID(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "BTC":
		return "bitcoin"
	case "ETH":
		return "ethereum"
	case "SOL":
		return "solana"
	case "ADA":
		return "cardano"
	case "DOT":
		return "polkadot"
	case "AVAX":
		return "avalanche-2"
	case "MATIC":
		return "matic-network"
	case "LINK":
		return "chainlink"
	case "UNI":
		return "uniswap"
	case "DOGE":
		return "dogecoin"
	case "XRP":
		return "ripple"
	case "BNB":
		return "binancecoin"

	// Stablecoins
	case "USDT":
		return "tether"
	case "USDC":
		return "usd-coin"

	default:
		return strings.ToLower(symbol)
	}
}

// Close releases idle upstream connections.
func (p *CoinGeckoPriceProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
