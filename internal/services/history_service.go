package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
)

const (
	maxHistoryDays = 1825
	// priceWalkBackDays bounds the search for the last close before a non-trading day.
	priceWalkBackDays = 7
	historyFetchLimit = 4
)

// snapshotCoverage is the share of requested days that must have a persisted
// snapshot before the series is built from snapshots alone.
var snapshotCoverage = decimal.NewFromFloat(0.8)

type historyService struct {
	portfolios   PortfolioService
	transactions repositories.TransactionRepository
	snapshots    repositories.SnapshotRepository
	prices       PriceService
	fx           ExchangeRateService
	logger       *zap.Logger
	now          func() time.Time
}

// NewHistoryService creates the net-worth history service
func NewHistoryService(
	portfolios PortfolioService,
	transactions repositories.TransactionRepository,
	snapshots repositories.SnapshotRepository,
	prices PriceService,
	fx ExchangeRateService,
	log *zap.Logger,
) HistoryService {
	return &historyService{
		portfolios:   portfolios,
		transactions: transactions,
		snapshots:    snapshots,
		prices:       prices,
		fx:           fx,
		logger:       logger.OrNop(log),
		now:          time.Now,
	}
}

// GetHistory returns one net-worth point per day for the days ending today.
// Dense snapshot coverage is served from snapshots with carry-forward; anything
// sparser replays the ledger against historical prices.
func (s *historyService) GetHistory(ctx context.Context, portfolioID string, days int, forceRefresh bool) (*models.NetWorthHistory, error) {
	if days < 1 || days > maxHistoryDays {
		return nil, &apperrors.ErrValidation{Field: "days", Message: "must be between 1 and 1825"}
	}
	if _, err := s.portfolios.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	today := models.DateOf(s.now().UTC())
	start := today.AddDate(0, 0, -(days - 1))

	snaps, err := s.snapshots.ListSince(ctx, portfolioID, start)
	if err != nil {
		return nil, err
	}
	persisted := make(map[time.Time]decimal.Decimal, len(snaps))
	for _, snap := range snaps {
		persisted[models.DateOf(snap.SnapshotDate)] = snap.NetWorth
	}

	var live *decimal.Decimal
	if _, ok := persisted[today]; !ok {
		summary, err := s.portfolios.GetSummary(ctx, portfolioID, forceRefresh)
		if err != nil {
			s.logger.Warn("live summary unavailable for history",
				zap.String("portfolio_id", portfolioID), zap.Error(err))
		} else {
			live = &summary.NetWorth
		}
	}

	history := &models.NetWorthHistory{PortfolioID: portfolioID, Days: days}
	if useSnapshots(len(persisted), days) {
		history.Source = models.HistorySourceSnapshots
		history.Points = snapshotSeries(start, days, persisted, snaps, today, live)
		return history, nil
	}

	points, err := s.replaySeries(ctx, portfolioID, start, today, days, persisted, live, forceRefresh)
	if err != nil {
		return nil, err
	}
	history.Source = models.HistorySourceReplay
	history.Points = points
	return history, nil
}

func useSnapshots(count, days int) bool {
	if count < 2 {
		return false
	}
	return decimal.NewFromInt(int64(count)).GreaterThanOrEqual(snapshotCoverage.Mul(decimal.NewFromInt(int64(days))))
}

// snapshotSeries carries the last seen value forward. Days before the first
// snapshot take the first snapshot's value.
func snapshotSeries(start time.Time, days int, persisted map[time.Time]decimal.Decimal, snaps []*models.NetWorthSnapshot, today time.Time, live *decimal.Decimal) []models.NetWorthPoint {
	values := persisted
	if live != nil {
		values = make(map[time.Time]decimal.Decimal, len(persisted)+1)
		for d, v := range persisted {
			values[d] = v
		}
		values[today] = *live
	}

	last := decimal.Zero
	if len(snaps) > 0 {
		last = snaps[0].NetWorth
	}
	points := make([]models.NetWorthPoint, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		if v, ok := values[day]; ok {
			last = v
		}
		points = append(points, models.NetWorthPoint{Date: day, Value: last})
	}
	return points
}

type priceSeries struct {
	closes map[time.Time]decimal.Decimal
	latest *decimal.Decimal
	live   *decimal.Decimal
}

// at resolves the price of one day: live for today and later, then the exact
// close, then the nearest close up to a week earlier, then live.
func (p *priceSeries) at(day, today time.Time) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	if !day.Before(today) {
		return p.current()
	}
	for back := 0; back <= priceWalkBackDays; back++ {
		if c, ok := p.closes[day.AddDate(0, 0, -back)]; ok {
			return c
		}
	}
	return p.current()
}

func (p *priceSeries) current() decimal.Decimal {
	switch {
	case p.live != nil:
		return *p.live
	case p.latest != nil:
		return *p.latest
	}
	return decimal.Zero
}

func (s *historyService) replaySeries(
	ctx context.Context,
	portfolioID string,
	start, today time.Time,
	days int,
	persisted map[time.Time]decimal.Decimal,
	live *decimal.Decimal,
	forceRefresh bool,
) ([]models.NetWorthPoint, error) {
	txs, err := s.transactions.ListByPortfolio(ctx, portfolioID, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	SortLedger(txs)

	classes := make(map[string]models.AssetClass)
	var priced []models.PriceRequest
	needsUSD := false
	for _, tx := range txs {
		if _, seen := classes[tx.Symbol]; seen {
			continue
		}
		classes[tx.Symbol] = tx.AssetClass
		if !tx.AssetClass.IsStatic() {
			priced = append(priced, models.PriceRequest{Symbol: tx.Symbol, AssetClass: tx.AssetClass})
			needsUSD = needsUSD || tx.AssetClass.IsUSDDenominated()
		}
	}

	series := s.loadPriceSeries(ctx, priced, models.TimeframeForDays(days), forceRefresh)
	usdRate := decimal.NewFromInt(1)
	if needsUSD {
		usdRate = s.fx.USDRate(ctx, forceRefresh)
	}

	holdings := make(map[string]decimal.Decimal)
	next := 0
	for ; next < len(txs) && models.DateOf(txs[next].ExecutedAt).Before(start); next++ {
		applyToHoldings(holdings, txs[next])
	}

	points := make([]models.NetWorthPoint, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		for ; next < len(txs) && !models.DateOf(txs[next].ExecutedAt).After(day); next++ {
			applyToHoldings(holdings, txs[next])
		}

		value := decimal.Zero
		for symbol, qty := range holdings {
			if qty.IsZero() {
				continue
			}
			switch class := classes[symbol]; {
			case class == models.AssetClassLiability:
				value = value.Sub(qty)
			case class == models.AssetClassFiat:
				value = value.Add(qty)
			default:
				multiplier := decimal.NewFromInt(1)
				if class.IsUSDDenominated() {
					multiplier = usdRate
				}
				value = value.Add(qty.Mul(series[symbol].at(day, today)).Mul(multiplier))
			}
		}
		value = value.Round(valuePlaces)

		if v, ok := persisted[day]; ok {
			value = v
		} else if day.Equal(today) && live != nil {
			value = *live
		}
		points = append(points, models.NetWorthPoint{Date: day, Value: value})
	}
	return points, nil
}

// loadPriceSeries fetches the daily closes and the live quote of every symbol
// concurrently. A failed fetch leaves the corresponding part empty.
func (s *historyService) loadPriceSeries(ctx context.Context, priced []models.PriceRequest, timeframe models.Timeframe, forceRefresh bool) map[string]*priceSeries {
	var mu sync.Mutex
	out := make(map[string]*priceSeries, len(priced))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyFetchLimit)
	for _, req := range priced {
		g.Go(func() error {
			ps := &priceSeries{closes: make(map[time.Time]decimal.Decimal)}

			points, err := s.prices.GetHistoricalPrices(gctx, req.Symbol, req.AssetClass, timeframe)
			if err != nil {
				s.logger.Warn("historical prices unavailable",
					zap.String("symbol", req.Symbol), zap.String("asset_class", string(req.AssetClass)), zap.Error(err))
			}
			for _, pt := range points {
				ps.closes[models.DateOf(pt.Date)] = pt.Close
			}
			if n := len(points); n > 0 {
				latest := points[n-1].Close
				ps.latest = &latest
			}

			q, err := s.prices.GetPrice(gctx, req.Symbol, req.AssetClass, forceRefresh)
			if err != nil {
				s.logger.Warn("live price unavailable for history",
					zap.String("symbol", req.Symbol), zap.String("asset_class", string(req.AssetClass)), zap.Error(err))
			} else {
				ps.live = &q.Price
			}

			mu.Lock()
			out[req.Symbol] = ps
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func applyToHoldings(holdings map[string]decimal.Decimal, tx *models.Transaction) {
	switch {
	case tx.Type.Disposes():
		holdings[tx.Symbol] = holdings[tx.Symbol].Sub(tx.Quantity)
	default:
		holdings[tx.Symbol] = holdings[tx.Symbol].Add(tx.Quantity)
	}
}

// SaveSnapshot persists today's live valuation, replacing any snapshot already
// stored for today.
func (s *historyService) SaveSnapshot(ctx context.Context, portfolioID string) (*models.NetWorthSnapshot, error) {
	summary, err := s.portfolios.GetSummary(ctx, portfolioID, false)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]models.CategoryBreakdown)
	for _, h := range summary.Holdings {
		cat := breakdown[string(h.AssetClass)]
		cat.Total = cat.Total.Add(h.Value)
		cat.Items = append(cat.Items, models.BreakdownItem{Symbol: h.Symbol, Value: h.Value})
		breakdown[string(h.AssetClass)] = cat
	}

	snap := &models.NetWorthSnapshot{
		PortfolioID:      portfolioID,
		SnapshotDate:     models.DateOf(s.now().UTC()),
		TotalAssets:      summary.TotalAssets,
		TotalLiabilities: summary.TotalLiabilities,
		NetWorth:         summary.NetWorth,
		Breakdown:        breakdown,
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return nil, err
	}
	s.logger.Info("saved net worth snapshot",
		zap.String("portfolio_id", portfolioID),
		zap.Time("date", snap.SnapshotDate),
		zap.String("net_worth", snap.NetWorth.String()))
	return snap, nil
}
