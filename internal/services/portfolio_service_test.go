package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

func seedMixedPortfolio(t *testing.T, f *serviceFixture) *models.Portfolio {
	t.Helper()
	ctx := context.Background()
	p := f.portfolio(t)
	for _, tx := range []*models.Transaction{
		ledgerTx(p.ID, "AAPL", models.AssetClassUSStock, models.TransactionTypeBuy, "10", "100", "0", day(1)),
		ledgerTx(p.ID, "2330", models.AssetClassTWStock, models.TransactionTypeBuy, "1000", "600", "0", day(1)),
		ledgerTx(p.ID, "CASH", models.AssetClassFiat, models.TransactionTypeDeposit, "50000", "1", "0", day(1)),
		ledgerTx(p.ID, "LOAN", models.AssetClassLiability, models.TransactionTypeDeposit, "20000", "1", "0", day(1)),
		ledgerTx(p.ID, "BTC", models.AssetClassCrypto, models.TransactionTypeBuy, "0.5", "60000", "0", day(1)),
		ledgerTx(p.ID, "ETH", models.AssetClassCrypto, models.TransactionTypeBuy, "1", "3000", "0", day(1)),
		ledgerTx(p.ID, "ETH", models.AssetClassCrypto, models.TransactionTypeSell, "1", "3500", "0", day(2)),
	} {
		require.NoError(t, f.ledger.CreateTransaction(ctx, tx))
	}
	return p
}

func TestPortfolioSummaryValuesHoldings(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	p := seedMixedPortfolio(t, f)

	prices := newFakePriceService()
	prices.set("AAPL", "USD", "yahoo", 190.5)
	prices.set("2330", "TWD", "twse", 1000)
	svc := NewPortfolioService(f.portfolios, f.positions, prices, &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)

	summary, err := svc.GetSummary(ctx, p.ID, false)
	require.NoError(t, err)

	assert.Equal(t, "TWD", summary.Currency)
	assert.True(t, summary.USDRate.Equal(decimal.NewFromInt(32)))
	assert.True(t, summary.TotalAssets.Equal(dec("1110960")), summary.TotalAssets.String())
	assert.True(t, summary.TotalLiabilities.Equal(dec("20000")))
	assert.True(t, summary.NetWorth.Equal(dec("1090960")))
	require.Len(t, summary.Holdings, 5, "closed ETH position is skipped")

	bySymbol := make(map[string]models.HoldingValue)
	for _, h := range summary.Holdings {
		bySymbol[h.Symbol] = h
	}
	aapl := bySymbol["AAPL"]
	assert.True(t, aapl.Value.Equal(dec("60960")))
	assert.True(t, aapl.UnrealizedPnL.Equal(dec("905")))
	assert.Equal(t, "yahoo", aapl.PriceSource)

	btc := bySymbol["BTC"]
	assert.True(t, btc.Value.IsZero())
	assert.Equal(t, models.SourceError, btc.PriceSource)
	assert.True(t, btc.UnrealizedPnL.IsZero())

	assert.Equal(t, models.SourceStatic, bySymbol["CASH"].PriceSource)
	assert.Equal(t, 1, prices.batchCalls)
}

func TestPortfolioSummaryWithoutUSDHoldingsSkipsFX(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	p := f.portfolio(t)
	require.NoError(t, f.ledger.CreateTransaction(ctx,
		ledgerTx(p.ID, "CASH", models.AssetClassFiat, models.TransactionTypeDeposit, "100", "1", "0", day(1))))

	svc := NewPortfolioService(f.portfolios, f.positions, newFakePriceService(), &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)
	summary, err := svc.GetSummary(ctx, p.ID, false)
	require.NoError(t, err)
	assert.True(t, summary.USDRate.Equal(decimal.NewFromInt(1)))
	assert.True(t, summary.NetWorth.Equal(dec("100")))
}

func TestPortfolioSummaryUnknownPortfolio(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewPortfolioService(f.portfolios, f.positions, newFakePriceService(), &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)
	_, err := svc.GetSummary(context.Background(), "missing", false)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPortfolioAllocation(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	p := seedMixedPortfolio(t, f)

	prices := newFakePriceService()
	prices.set("AAPL", "USD", "yahoo", 190.5)
	prices.set("2330", "TWD", "twse", 1000)
	svc := NewPortfolioService(f.portfolios, f.positions, prices, &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)

	alloc, err := svc.GetAllocation(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, alloc, 4)

	want := []struct {
		category models.AssetClass
		percent  string
	}{
		{models.AssetClassCrypto, "0"},
		{models.AssetClassUSStock, "5.49"},
		{models.AssetClassTWStock, "90.01"},
		{models.AssetClassFiat, "4.5"},
	}
	for i, w := range want {
		assert.Equal(t, w.category, alloc[i].Category)
		assert.True(t, alloc[i].Percent.Equal(dec(w.percent)), "%s: %s", w.category, alloc[i].Percent)
	}
}

func TestPortfolioCreateDefaultsCurrency(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	svc := NewPortfolioService(f.portfolios, f.positions, newFakePriceService(), &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)

	p := &models.Portfolio{Name: "Retirement"}
	require.NoError(t, svc.CreatePortfolio(ctx, p))
	assert.Equal(t, "TWD", p.BaseCurrency)
	assert.NotEmpty(t, p.ID)

	assert.True(t, apperrors.IsValidation(svc.CreatePortfolio(ctx, &models.Portfolio{BaseCurrency: "usd"})))

	list, err := svc.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPortfolioHeldSymbols(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	seedMixedPortfolio(t, f)
	svc := NewPortfolioService(f.portfolios, f.positions, newFakePriceService(), &fakeExchangeRates{rate: decimal.NewFromInt(32)}, nil)

	held, err := svc.HeldSymbols(ctx)
	require.NoError(t, err)
	symbols := make([]string, 0, len(held))
	for _, h := range held {
		symbols = append(symbols, h.Symbol)
	}
	assert.ElementsMatch(t, []string{"AAPL", "2330", "CASH", "LOAN", "BTC"}, symbols)
}
