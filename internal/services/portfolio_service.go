package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
)

const valuePlaces = 2

type portfolioService struct {
	portfolios repositories.PortfolioRepository
	positions  repositories.PositionRepository
	prices     PriceService
	fx         ExchangeRateService
	logger     *zap.Logger
	now        func() time.Time
}

// NewPortfolioService creates the portfolio valuation service
func NewPortfolioService(
	portfolios repositories.PortfolioRepository,
	positions repositories.PositionRepository,
	prices PriceService,
	fx ExchangeRateService,
	log *zap.Logger,
) PortfolioService {
	return &portfolioService{
		portfolios: portfolios,
		positions:  positions,
		prices:     prices,
		fx:         fx,
		logger:     logger.OrNop(log),
		now:        time.Now,
	}
}

func (s *portfolioService) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	p.BaseCurrency = strings.ToUpper(strings.TrimSpace(p.BaseCurrency))
	if p.BaseCurrency == "" {
		p.BaseCurrency = s.fx.SettlementCurrency()
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = ""
	return s.portfolios.Create(ctx, p)
}

func (s *portfolioService) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	return s.portfolios.GetByID(ctx, id)
}

func (s *portfolioService) ListPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	return s.portfolios.List(ctx)
}

// GetSummary values every open position at its current quote. Quote failures
// degrade to stale or zero prices tagged by source; they never fail the summary.
func (s *portfolioService) GetSummary(ctx context.Context, portfolioID string, forceRefresh bool) (*models.PortfolioSummary, error) {
	if _, err := s.portfolios.GetByID(ctx, portfolioID); err != nil {
		return nil, err
	}
	positions, err := s.positions.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var (
		open     []*models.Position
		requests []models.PriceRequest
		needsUSD bool
	)
	for _, p := range positions {
		if p.Quantity.IsZero() {
			continue
		}
		open = append(open, p)
		requests = append(requests, models.PriceRequest{Symbol: p.Symbol, AssetClass: p.AssetClass})
		if p.AssetClass.IsUSDDenominated() {
			needsUSD = true
		}
	}

	quotes := s.prices.GetPricesBatch(ctx, requests, forceRefresh)
	usdRate := decimal.NewFromInt(1)
	if needsUSD {
		usdRate = s.fx.USDRate(ctx, forceRefresh)
	}

	summary := &models.PortfolioSummary{
		PortfolioID:      portfolioID,
		Currency:         s.fx.SettlementCurrency(),
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		USDRate:          usdRate,
		Holdings:         make([]models.HoldingValue, 0, len(open)),
		AsOf:             s.now().UTC(),
	}
	for _, p := range open {
		h := valueHolding(p, quotes[p.Symbol], usdRate)
		if p.AssetClass == models.AssetClassLiability {
			summary.TotalLiabilities = summary.TotalLiabilities.Add(h.Value)
		} else {
			summary.TotalAssets = summary.TotalAssets.Add(h.Value)
		}
		summary.Holdings = append(summary.Holdings, h)
	}
	summary.NetWorth = summary.TotalAssets.Sub(summary.TotalLiabilities)
	return summary, nil
}

// valueHolding prices one position in the settlement currency. Static classes
// are worth their quantity; USD classes are converted at usdRate.
func valueHolding(p *models.Position, q *models.Quote, usdRate decimal.Decimal) models.HoldingValue {
	h := models.HoldingValue{
		Symbol:        p.Symbol,
		Name:          p.Name,
		AssetClass:    p.AssetClass,
		Quantity:      p.Quantity,
		AvgCost:       p.AvgCost,
		Price:         decimal.Zero,
		Currency:      p.Currency,
		Value:         decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		PriceSource:   models.SourceError,
	}
	if p.AssetClass.IsStatic() {
		h.Price = decimal.NewFromInt(1)
		h.Value = p.Quantity.Round(valuePlaces)
		h.PriceSource = models.SourceStatic
		return h
	}
	if q == nil {
		return h
	}

	h.Price = q.Price
	h.Currency = q.Currency
	h.PriceSource = q.Source
	multiplier := decimal.NewFromInt(1)
	if p.AssetClass.IsUSDDenominated() {
		multiplier = usdRate
	}
	h.Value = p.Quantity.Mul(q.Price).Mul(multiplier).Round(valuePlaces)
	if q.Source != models.SourceError {
		h.UnrealizedPnL = q.Price.Sub(p.AvgCost).Mul(p.Quantity).Round(valuePlaces)
	}
	return h
}

// GetAllocation splits total assets by asset class. Liabilities are excluded.
func (s *portfolioService) GetAllocation(ctx context.Context, portfolioID string) ([]models.AllocationEntry, error) {
	summary, err := s.GetSummary(ctx, portfolioID, false)
	if err != nil {
		return nil, err
	}
	return allocationOf(summary), nil
}

func allocationOf(summary *models.PortfolioSummary) []models.AllocationEntry {
	totals := make(map[models.AssetClass]decimal.Decimal)
	for _, h := range summary.Holdings {
		if h.AssetClass == models.AssetClassLiability {
			continue
		}
		totals[h.AssetClass] = totals[h.AssetClass].Add(h.Value)
	}

	out := []models.AllocationEntry{}
	for _, class := range models.AssetClasses {
		value, ok := totals[class]
		if !ok {
			continue
		}
		percent := decimal.Zero
		if summary.TotalAssets.IsPositive() {
			percent = value.Div(summary.TotalAssets).Mul(hundred).Round(valuePlaces)
		}
		out = append(out, models.AllocationEntry{Category: class, Value: value, Percent: percent})
	}
	return out
}

// HeldSymbols lists every (symbol, asset class) held by any portfolio.
func (s *portfolioService) HeldSymbols(ctx context.Context) ([]models.PriceRequest, error) {
	return s.positions.DistinctHeld(ctx)
}
