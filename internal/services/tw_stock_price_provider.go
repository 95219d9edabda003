package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

const (
	twseName            = "twse"
	twseDefaultURL      = "https://mis.twse.com.tw/stock/api"
	twseDirectoryURL    = "https://openapi.twse.com.tw/v1/exchangeReport/STOCK_DAY_ALL"
	twseSearchCap       = 15
	twseDirectoryMaxAge = 24 * time.Hour
)

type twStockListing struct {
	Code string `json:"Code"`
	Name string `json:"Name"`
}

// TWSEPriceProvider serves Taiwan listed and OTC equities in TWD from the TWSE
// market information system. Daily history comes from Yahoo (".TW"/".TWO").
type TWSEPriceProvider struct {
	baseURL      string
	directoryURL string
	httpClient   *http.Client
	history      *YahooPriceProvider
	now          func() time.Time

	mu              sync.Mutex
	directory       []twStockListing
	directoryLoaded time.Time
}

func NewTWSEPriceProvider(baseURL string, history *YahooPriceProvider) *TWSEPriceProvider {
	if baseURL == "" {
		baseURL = twseDefaultURL
	}
	return &TWSEPriceProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		directoryURL: twseDirectoryURL,
		httpClient:   &http.Client{Timeout: defaultProviderTimeout},
		history:      history,
		now:          time.Now,
	}
}

func (p *TWSEPriceProvider) Name() string {
	return twseName
}

// GetCurrentPrice takes the first available of last trade, trial match price,
// best bid and previous close. The 24h change is measured against previous close.
func (p *TWSEPriceProvider) GetCurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	code := twStockCode(symbol)
	channels := fmt.Sprintf("tse_%s.tw|otc_%s.tw", code, code)
	endpoint := fmt.Sprintf("%s/getStockInfo.jsp?ex_ch=%s", p.baseURL, url.QueryEscape(channels))

	var payload struct {
		MsgArray []struct {
			Code      string `json:"c"`
			Name      string `json:"n"`
			LastTrade string `json:"z"`
			TrialLast string `json:"pz"`
			Bids      string `json:"b"`
			PrevClose string `json:"y"`
		} `json:"msgArray"`
	}
	if err := getJSON(ctx, p.httpClient, endpoint, nil, &payload); err != nil {
		return nil, apperrors.NewProviderError(twseName, code, err)
	}
	if len(payload.MsgArray) == 0 {
		return nil, apperrors.NewNotFound("symbol", code)
	}

	for _, m := range payload.MsgArray {
		prev, hasPrev := parseTWSEPrice(m.PrevClose)
		price, ok := parseTWSEPrice(m.LastTrade)
		if !ok {
			price, ok = parseTWSEPrice(m.TrialLast)
		}
		if !ok {
			price, ok = firstBid(m.Bids)
		}
		if !ok && hasPrev {
			price, ok = prev, true
		}
		if !ok {
			continue
		}

		q := &models.Quote{
			Symbol:    code,
			Price:     price,
			Currency:  "TWD",
			Timestamp: p.now().UTC(),
			Source:    twseName,
		}
		if hasPrev && prev.IsPositive() {
			change := price.Sub(prev)
			pct := change.Div(prev).Mul(hundred).Round(4)
			q.Change24h = &change
			q.ChangePercent24h = &pct
		}
		return q, nil
	}
	return nil, apperrors.NewProviderError(twseName, code, fmt.Errorf("no usable price in response"))
}

func (p *TWSEPriceProvider) GetHistoricalPrices(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.HistoricalPoint, error) {
	if p.history == nil {
		return nil, nil
	}
	code := twStockCode(symbol)

	var lastErr error
	for _, suffix := range []string{".TW", ".TWO"} {
		points, err := p.history.GetHistoricalPrices(ctx, code+suffix, timeframe)
		if err != nil {
			lastErr = err
			continue
		}
		if len(points) == 0 {
			continue
		}
		for i := range points {
			points[i].Symbol = code
		}
		return points, nil
	}
	if lastErr != nil && !apperrors.IsNotFound(lastErr) {
		return nil, lastErr
	}
	return nil, apperrors.NewNotFound("symbol", code)
}

// SearchSymbol matches the query against listing codes and names.
func (p *TWSEPriceProvider) SearchSymbol(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	listings, err := p.listings(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, twseSearchCap)
	for _, l := range listings {
		if strings.Contains(l.Code, query) || strings.Contains(strings.ToUpper(l.Name), query) {
			results = append(results, models.SearchResult{
				Symbol:     l.Code,
				Name:       l.Name,
				AssetClass: models.AssetClassTWStock,
				Exchange:   "TWSE",
				Type:       "equity",
			})
			if len(results) == twseSearchCap {
				break
			}
		}
	}
	return results, nil
}

func (p *TWSEPriceProvider) GetMarketDetail(ctx context.Context, symbol string) (*models.MarketDetail, error) {
	code := twStockCode(symbol)
	if p.history == nil {
		return nil, apperrors.NewNotFound("market detail", code)
	}
	for _, suffix := range []string{".TW", ".TWO"} {
		closes, err := p.history.dailyCloses(ctx, code+suffix, "2y")
		if err != nil || len(closes) == 0 {
			continue
		}
		return buildMarketDetail(code, "TWD", twseName, closes, tradingDayOffsets), nil
	}
	return nil, apperrors.NewNotFound("symbol", code)
}

// Close releases idle upstream connections.
func (p *TWSEPriceProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *TWSEPriceProvider) listings(ctx context.Context) ([]twStockListing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.directory != nil && p.now().Sub(p.directoryLoaded) < twseDirectoryMaxAge {
		return p.directory, nil
	}
	var listings []twStockListing
	if err := getJSON(ctx, p.httpClient, p.directoryURL, nil, &listings); err != nil {
		if p.directory != nil {
			return p.directory, nil
		}
		return nil, apperrors.NewProviderError(twseName, "", err)
	}
	p.directory = listings
	p.directoryLoaded = p.now()
	return listings, nil
}

// twStockCode strips the Yahoo-style market suffix: "2330.TW" -> "2330".
func twStockCode(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, ".TWO")
	return strings.TrimSuffix(s, ".TW")
}

// parseTWSEPrice reads a TWSE numeric field; "-" and "" mean no value.
func parseTWSEPrice(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// firstBid reads the best bid from an underscore separated list like "580.0000_579.0000_".
func firstBid(raw string) (decimal.Decimal, bool) {
	for _, part := range strings.Split(raw, "_") {
		if d, ok := parseTWSEPrice(part); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}
