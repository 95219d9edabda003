package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/networth/internal/db"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
	"github.com/tropicaldog17/networth/internal/services"
)

type testServer struct {
	*httptest.Server
	prices *mockPriceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := db.OpenSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	portfolioRepo := repositories.NewPortfolioRepository(database)
	transactionRepo := repositories.NewTransactionRepository(database)
	positionRepo := repositories.NewPositionRepository(database)
	snapshotRepo := repositories.NewSnapshotRepository(database)

	prices := newMockPriceService()
	fx := &mockExchangeRates{rate: decimal.NewFromInt(32)}
	ledger := services.NewLedgerService(portfolioRepo, transactionRepo, positionRepo, snapshotRepo, nil)
	portfolios := services.NewPortfolioService(portfolioRepo, positionRepo, prices, fx, nil)
	history := services.NewHistoryService(portfolios, transactionRepo, snapshotRepo, prices, fx, nil)

	router := NewRouter(Services{
		Prices:     prices,
		FX:         fx,
		Ledger:     ledger,
		Portfolios: portfolios,
		History:    history,
		Health:     database.Health,
	}, nil)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, prices: prices}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestQuoteErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.prices.set("AAPL", "USD", 190)
	s.prices.errs["NOPE"] = apperrors.NewNotFound("symbol", "NOPE")
	s.prices.errs["DOWN"] = apperrors.NewProviderError("yahoo", "DOWN", errors.New("timeout"))
	s.prices.errs["BOOM"] = errors.New("unexpected")

	tests := []struct {
		path   string
		status int
	}{
		{"/api/quotes/us_stock/AAPL", http.StatusOK},
		{"/api/quotes/us_stock/NOPE", http.StatusNotFound},
		{"/api/quotes/us_stock/DOWN", http.StatusBadGateway},
		{"/api/quotes/us_stock/BOOM", http.StatusInternalServerError},
		{"/api/quotes/bonds/AAPL", http.StatusBadRequest},
		{"/api/quotes/us_stock/AAPL/detail", http.StatusOK},
		{"/api/quotes/crypto/NOPE/detail", http.StatusNotFound},
		{"/api/quotes/us_stock/AAPL/history?timeframe=1Y", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.status, s.do(t, http.MethodGet, tt.path, nil, nil))
		})
	}

	var q models.Quote
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/quotes/us_stock/AAPL", nil, &q))
	assert.True(t, q.Price.Equal(decimal.NewFromInt(190)))
}

func TestBatchQuotes(t *testing.T) {
	s := newTestServer(t)
	s.prices.set("AAPL", "USD", 190)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/quotes/batch", batchQuoteRequest{}, nil))

	tooMany := make([]models.PriceRequest, maxBatchItems+1)
	for i := range tooMany {
		tooMany[i] = models.PriceRequest{Symbol: fmt.Sprintf("S%d", i), AssetClass: models.AssetClassCrypto}
	}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/quotes/batch", batchQuoteRequest{Items: tooMany}, nil))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/quotes/batch", batchQuoteRequest{Items: tooMany[:maxBatchItems]}, nil))

	var got map[string]models.Quote
	status := s.do(t, http.MethodPost, "/api/quotes/batch", batchQuoteRequest{Items: []models.PriceRequest{
		{Symbol: "AAPL", AssetClass: models.AssetClassUSStock},
		{Symbol: "XYZ", AssetClass: models.AssetClassCrypto},
	}}, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mock", got["AAPL"].Source)
	assert.Equal(t, models.SourceError, got["XYZ"].Source)
}

func TestSearchDefaultsToAllClasses(t *testing.T) {
	s := newTestServer(t)
	var results []models.SearchResult
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/search?q=aapl", nil, &results))
	assert.Equal(t, models.AssetClassAll, s.prices.searchClass)
	require.Len(t, results, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/search?q=aapl&asset_class=bonds", nil, nil))
}

func TestUSDRate(t *testing.T) {
	s := newTestServer(t)
	var got usdRateResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/fx/usd", nil, &got))
	assert.Equal(t, "TWD", got.Quote)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(32)))
}

func TestPortfolioLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.prices.set("AAPL", "USD", 150)

	var p models.Portfolio
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/portfolios", map[string]string{"name": "Main"}, &p))
	assert.Equal(t, "TWD", p.BaseCurrency)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/portfolios", map[string]string{}, nil))

	buy := map[string]string{
		"symbol":      "aapl",
		"asset_class": "us_stock",
		"type":        "buy",
		"quantity":    "10",
		"unit_price":  "100",
		"currency":    "USD",
		"executed_at": "2024-01-02T10:00:00Z",
	}
	var tx models.Transaction
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/portfolios/"+p.ID+"/transactions", buy, &tx))
	assert.Equal(t, "AAPL", tx.Symbol)
	assert.Equal(t, p.ID, tx.PortfolioID)

	buy["quantity"] = "0"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/portfolios/"+p.ID+"/transactions", buy, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/portfolios/missing/transactions", map[string]string{
		"symbol": "AAPL", "asset_class": "us_stock", "type": "buy", "quantity": "1", "unit_price": "1",
		"currency": "USD", "executed_at": "2024-01-02T10:00:00Z",
	}, nil))

	var summary models.PortfolioSummary
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/summary", nil, &summary))
	assert.True(t, summary.NetWorth.Equal(decimal.NewFromInt(48000)), summary.NetWorth.String())

	var alloc []models.AllocationEntry
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/allocation", nil, &alloc))
	require.Len(t, alloc, 1)
	assert.Equal(t, models.AssetClassUSStock, alloc[0].Category)

	var updated models.Transaction
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/transactions/"+tx.ID, map[string]string{"quantity": "4"}, &updated))
	assert.True(t, updated.Quantity.Equal(decimal.NewFromInt(4)))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/summary", nil, &summary))
	assert.True(t, summary.NetWorth.Equal(decimal.NewFromInt(19200)), summary.NetWorth.String())

	var snap models.NetWorthSnapshot
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/portfolios/"+p.ID+"/snapshots", nil, &snap))
	assert.True(t, snap.NetWorth.Equal(decimal.NewFromInt(19200)))

	var history models.NetWorthHistory
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/history?days=7", nil, &history))
	assert.Len(t, history.Points, 7)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/history?days=0", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/history?days=week", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/portfolios/missing/history", nil, nil))

	var txs []models.Transaction
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/portfolios/"+p.ID+"/transactions", nil, &txs))
	assert.Len(t, txs, 1)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/transactions/"+tx.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, nil, nil))

	var recalc models.RecalculationSummary
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/admin/recalculate", nil, &recalc))
	assert.Equal(t, 1, recalc.Portfolios)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	status := s.do(t, http.MethodOptions, "/api/portfolios", nil, nil)
	assert.Equal(t, http.StatusOK, status)
}
