package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
)

type heldSymbolLister interface {
	HeldSymbols(ctx context.Context) ([]models.PriceRequest, error)
}

type batchPricer interface {
	GetPricesBatch(ctx context.Context, items []models.PriceRequest, forceRefresh bool) map[string]*models.Quote
}

type portfolioLister interface {
	ListPortfolios(ctx context.Context) ([]*models.Portfolio, error)
}

type snapshotSaver interface {
	SaveSnapshot(ctx context.Context, portfolioID string) (*models.NetWorthSnapshot, error)
}

// PriceRefreshJob keeps the quote cache warm for every symbol held in any portfolio.
type PriceRefreshJob struct {
	held   heldSymbolLister
	prices batchPricer
	logger *zap.Logger
}

func NewPriceRefreshJob(held heldSymbolLister, prices batchPricer, log *zap.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{held: held, prices: prices, logger: logger.OrNop(log).With(zap.String("job", "price_refresh"))}
}

func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

func (j *PriceRefreshJob) Run(ctx context.Context) error {
	items, err := j.held.HeldSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list held symbols: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	quotes := j.prices.GetPricesBatch(ctx, items, true)
	failed := 0
	for _, q := range quotes {
		if q == nil || q.Source == models.SourceError {
			failed++
		}
	}
	if failed > 0 {
		j.logger.Warn("Some prices could not be refreshed", zap.Int("failed", failed), zap.Int("total", len(items)))
	} else {
		j.logger.Debug("Prices refreshed", zap.Int("total", len(items)))
	}
	return ctx.Err()
}

// SnapshotJob persists today's net worth for every portfolio. A failing
// portfolio does not stop the others.
type SnapshotJob struct {
	portfolios portfolioLister
	history    snapshotSaver
	logger     *zap.Logger
}

func NewSnapshotJob(portfolios portfolioLister, history snapshotSaver, log *zap.Logger) *SnapshotJob {
	return &SnapshotJob{portfolios: portfolios, history: history, logger: logger.OrNop(log).With(zap.String("job", "snapshot"))}
}

func (j *SnapshotJob) Name() string {
	return "snapshot"
}

func (j *SnapshotJob) Run(ctx context.Context) error {
	portfolios, err := j.portfolios.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	var errs error
	saved := 0
	for _, p := range portfolios {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if _, err := j.history.SaveSnapshot(ctx, p.ID); err != nil {
			j.logger.Warn("Failed to save snapshot", zap.String("portfolio_id", p.ID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("portfolio %s: %w", p.ID, err))
			continue
		}
		saved++
	}
	j.logger.Info("Snapshots saved", zap.Int("saved", saved), zap.Int("portfolios", len(portfolios)))
	return errs
}

type sweeper interface {
	Sweep() int
}

// CacheSweepJob evicts expired entries from the in-process quote store.
type CacheSweepJob struct {
	store  sweeper
	logger *zap.Logger
}

func NewCacheSweepJob(store sweeper, log *zap.Logger) *CacheSweepJob {
	return &CacheSweepJob{store: store, logger: logger.OrNop(log).With(zap.String("job", "cache_sweep"))}
}

func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

func (j *CacheSweepJob) Run(context.Context) error {
	if n := j.store.Sweep(); n > 0 {
		j.logger.Debug("Expired quotes evicted", zap.Int("evicted", n))
	}
	return nil
}
