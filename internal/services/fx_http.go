package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
)

const fxProviderName = "fx-api"

// HTTPFXProvider reads exchange rates from an exchangerate-api style endpoint
// (GET {baseURL}/{BASE} returning "rates" or "conversion_rates").
type HTTPFXProvider struct {
	baseURL    string
	httpClient *http.Client
}

// normalizeCurrencyForAPI maps stablecoins onto USD, which fiat FX APIs
// accept as a base while USDT/USDC are not.
func normalizeCurrencyForAPI(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "USDT" || s == "USDC" {
		return "USD"
	}
	return s
}

// ExchangeRateResponse covers both the v4 ("rates") and v6 ("conversion_rates") payloads.
type ExchangeRateResponse struct {
	Result          string                     `json:"result"`
	BaseCode        string                     `json:"base_code"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

// NewHTTPFXProvider creates a provider for baseURL, e.g. https://open.er-api.com/v6/latest
func NewHTTPFXProvider(baseURL string) *HTTPFXProvider {
	return &HTTPFXProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
	}
}

// GetRate retrieves the rate converting one unit of from into to.
func (p *HTTPFXProvider) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	base := normalizeCurrencyForAPI(from)
	target := normalizeCurrencyForAPI(to)
	if base == target {
		return decimal.NewFromInt(1), nil
	}

	var body ExchangeRateResponse
	url := fmt.Sprintf("%s/%s", p.baseURL, base)
	if err := getJSON(ctx, p.httpClient, url, nil, &body); err != nil {
		return decimal.Zero, apperrors.NewProviderError(fxProviderName, base+target, err)
	}
	if body.Result != "" && body.Result != "success" {
		return decimal.Zero, apperrors.NewProviderError(fxProviderName, base+target, fmt.Errorf("API error: %s", body.Result))
	}

	rates := body.ConversionRates
	if len(rates) == 0 {
		rates = body.Rates
	}
	if len(rates) == 0 {
		return decimal.Zero, apperrors.NewProviderError(fxProviderName, base+target, fmt.Errorf("API response missing rates"))
	}

	rate, ok := rates[target]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, apperrors.NewNotFound("exchange rate", base+"/"+target)
	}
	return rate, nil
}

// Close releases idle connections.
func (p *HTTPFXProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
