package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
)

// FXConfig describes how USD amounts are converted into the settlement currency.
type FXConfig struct {
	SettlementCurrency string
	// Symbol is the FX pair quoted through the us_stock provider, e.g. TWD=X.
	Symbol       string
	FallbackRate decimal.Decimal
}

type exchangeRateService struct {
	prices PriceService
	direct FXProvider
	cfg    FXConfig
	logger *zap.Logger
}

// NewExchangeRateService creates the USD rate service. direct may be nil.
func NewExchangeRateService(prices PriceService, direct FXProvider, cfg FXConfig, log *zap.Logger) ExchangeRateService {
	cfg.SettlementCurrency = strings.ToUpper(cfg.SettlementCurrency)
	if cfg.SettlementCurrency == "" {
		cfg.SettlementCurrency = "TWD"
	}
	if cfg.Symbol == "" {
		cfg.Symbol = cfg.SettlementCurrency + "=X"
	}
	if !cfg.FallbackRate.IsPositive() {
		cfg.FallbackRate = decimal.NewFromInt(32)
	}
	return &exchangeRateService{prices: prices, direct: direct, cfg: cfg, logger: logger.OrNop(log)}
}

func (s *exchangeRateService) SettlementCurrency() string {
	return s.cfg.SettlementCurrency
}

// USDRate tries the quote path first, then the direct FX API, then the fixed fallback.
func (s *exchangeRateService) USDRate(ctx context.Context, forceRefresh bool) decimal.Decimal {
	if s.cfg.SettlementCurrency == "USD" {
		return decimal.NewFromInt(1)
	}

	q, err := s.prices.GetPrice(ctx, s.cfg.Symbol, models.AssetClassUSStock, forceRefresh)
	if err == nil && q.Price.IsPositive() {
		return q.Price
	}
	s.logger.Warn("FX quote unavailable", zap.String("symbol", s.cfg.Symbol), zap.Error(err))

	if s.direct != nil {
		rate, err := s.direct.GetRate(ctx, "USD", s.cfg.SettlementCurrency)
		if err == nil && rate.IsPositive() {
			return rate
		}
		s.logger.Warn("FX API unavailable", zap.String("currency", s.cfg.SettlementCurrency), zap.Error(err))
	}

	s.logger.Warn("using fallback FX rate",
		zap.String("currency", s.cfg.SettlementCurrency), zap.String("rate", s.cfg.FallbackRate.String()))
	return s.cfg.FallbackRate
}
