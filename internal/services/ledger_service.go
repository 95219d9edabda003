package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/logger"
	"github.com/tropicaldog17/networth/internal/models"
	"github.com/tropicaldog17/networth/internal/repositories"
)

const (
	avgCostPlaces     = 8
	realizedPnLPlaces = 4
)

// LedgerState is the result of replaying the transactions of one (portfolio, symbol).
type LedgerState struct {
	Quantity    decimal.Decimal
	AvgCost     decimal.Decimal
	RealizedPnL map[string]decimal.Decimal
	Anomalies   []*apperrors.AnomalyWarning
	// Last is the latest transaction in replay order, nil for an empty ledger.
	Last *models.Transaction
	Name *string
}

// SortLedger orders transactions by execution time, then insertion sequence.
func SortLedger(txs []*models.Transaction) {
	slices.SortStableFunc(txs, func(a, b *models.Transaction) int {
		if c := a.ExecutedAt.Compare(b.ExecutedAt); c != 0 {
			return c
		}
		if a.Sequence != b.Sequence {
			if a.Sequence < b.Sequence {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ReplayTransactions rebuilds quantity, weighted average cost and realized P&L
// from an empty holding. The input slice is not modified.
//
// Buys and deposits re-average the cost; sells and withdrawals realize
// (price - avg) * qty - fee against the current average; dividends realize
// price * qty - fee. A sale with nothing held uses its own price as cost basis
// and is reported as an anomaly when it leaves the quantity negative.
func ReplayTransactions(txs []*models.Transaction) *LedgerState {
	ordered := slices.Clone(txs)
	SortLedger(ordered)

	state := &LedgerState{
		Quantity:    decimal.Zero,
		AvgCost:     decimal.Zero,
		RealizedPnL: make(map[string]decimal.Decimal, len(ordered)),
	}

	for _, tx := range ordered {
		pnl := decimal.Zero
		switch {
		case tx.Type.Acquires():
			newQty := state.Quantity.Add(tx.Quantity)
			if state.Quantity.IsPositive() {
				cost := state.Quantity.Mul(state.AvgCost).Add(tx.Quantity.Mul(tx.UnitPrice))
				state.AvgCost = cost.Div(newQty).Round(avgCostPlaces)
			} else {
				state.AvgCost = tx.UnitPrice.Round(avgCostPlaces)
			}
			state.Quantity = newQty

		case tx.Type.Disposes():
			basis := state.AvgCost
			if !state.Quantity.IsPositive() {
				basis = tx.UnitPrice
			}
			pnl = tx.UnitPrice.Sub(basis).Mul(tx.Quantity).Sub(tx.Fee).Round(realizedPnLPlaces)
			state.Quantity = state.Quantity.Sub(tx.Quantity)
			if state.Quantity.IsNegative() {
				state.Anomalies = append(state.Anomalies, &apperrors.AnomalyWarning{
					PortfolioID:   tx.PortfolioID,
					Symbol:        tx.Symbol,
					TransactionID: tx.ID,
					Sold:          tx.Quantity,
					Remaining:     state.Quantity,
				})
			}

		case tx.Type == models.TransactionTypeDividend:
			pnl = tx.UnitPrice.Mul(tx.Quantity).Sub(tx.Fee).Round(realizedPnLPlaces)
		}

		state.RealizedPnL[tx.ID] = pnl
		state.Last = tx
		if tx.AssetName != nil {
			state.Name = tx.AssetName
		}
	}
	return state
}

type ledgerService struct {
	portfolios   repositories.PortfolioRepository
	transactions repositories.TransactionRepository
	positions    repositories.PositionRepository
	snapshots    repositories.SnapshotRepository
	locks        *keyedMutex
	logger       *zap.Logger
}

// NewLedgerService creates the ledger service
func NewLedgerService(
	portfolios repositories.PortfolioRepository,
	transactions repositories.TransactionRepository,
	positions repositories.PositionRepository,
	snapshots repositories.SnapshotRepository,
	log *zap.Logger,
) LedgerService {
	return &ledgerService{
		portfolios:   portfolios,
		transactions: transactions,
		positions:    positions,
		snapshots:    snapshots,
		locks:        newKeyedMutex(),
		logger:       logger.OrNop(log),
	}
}

// CreateTransaction validates and stores tx, then rebuilds its position.
// tx.RealizedPnL is filled from the replay. When the rebuild fails the
// transaction stays stored and the error is returned; RecalculateAllPortfolios
// repairs the position.
func (s *ledgerService) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return err
	}
	if _, err := s.portfolios.GetByID(ctx, tx.PortfolioID); err != nil {
		return err
	}

	tx.ID = ""
	tx.RealizedPnL = decimal.Zero
	if err := s.transactions.Create(ctx, tx); err != nil {
		return err
	}

	state, err := s.recalculate(ctx, tx.PortfolioID, tx.Symbol)
	s.invalidateSnapshots(ctx, tx.PortfolioID, tx.ExecutedAt)
	if err != nil {
		s.logStalePosition(tx.PortfolioID, tx.Symbol, err)
		return err
	}
	tx.RealizedPnL = state.RealizedPnL[tx.ID]
	return nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

// ListTransactions returns the whole ledger of a portfolio in replay order.
func (s *ledgerService) ListTransactions(ctx context.Context, portfolioID string) ([]*models.Transaction, error) {
	if _, err := s.portfolios.GetByID(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.transactions.ListByPortfolio(ctx, portfolioID, time.Time{})
}

// UpdateTransaction applies a partial edit. Snapshots are invalidated from the
// earlier of the old and new execution dates, and both positions are rebuilt
// when the edit moves the transaction to another symbol.
func (s *ledgerService) UpdateTransaction(ctx context.Context, id string, update *models.TransactionUpdate) (*models.Transaction, error) {
	if update == nil {
		return nil, &apperrors.ErrValidation{Field: "update", Message: "is required"}
	}
	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSymbol := tx.Symbol
	oldExecutedAt := tx.ExecutedAt

	update.Apply(tx)
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, err
	}

	from := oldExecutedAt
	if tx.ExecutedAt.Before(from) {
		from = tx.ExecutedAt
	}
	defer s.invalidateSnapshots(ctx, tx.PortfolioID, from)

	if oldSymbol != tx.Symbol {
		if _, err := s.recalculate(ctx, tx.PortfolioID, oldSymbol); err != nil {
			s.logStalePosition(tx.PortfolioID, oldSymbol, err)
			return nil, err
		}
	}
	state, err := s.recalculate(ctx, tx.PortfolioID, tx.Symbol)
	if err != nil {
		s.logStalePosition(tx.PortfolioID, tx.Symbol, err)
		return nil, err
	}
	tx.RealizedPnL = state.RealizedPnL[tx.ID]
	return tx, nil
}

func (s *ledgerService) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.transactions.Delete(ctx, id); err != nil {
		return err
	}
	_, err = s.recalculate(ctx, tx.PortfolioID, tx.Symbol)
	s.invalidateSnapshots(ctx, tx.PortfolioID, tx.ExecutedAt)
	if err != nil {
		s.logStalePosition(tx.PortfolioID, tx.Symbol, err)
	}
	return err
}

// RecalculatePosition rebuilds the position of (portfolioID, symbol) from its
// full ledger. It returns nil when no transactions remain.
func (s *ledgerService) RecalculatePosition(ctx context.Context, portfolioID, symbol string) (*models.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if portfolioID == "" || symbol == "" {
		return nil, &apperrors.ErrValidation{Field: "symbol", Message: "portfolio and symbol are required"}
	}
	state, err := s.recalculate(ctx, portfolioID, symbol)
	if err != nil {
		return nil, err
	}
	if state.Last == nil {
		return nil, nil
	}
	return s.positions.Get(ctx, portfolioID, symbol)
}

func (s *ledgerService) recalculate(ctx context.Context, portfolioID, symbol string) (*LedgerState, error) {
	unlock := s.locks.Lock(portfolioID + "/" + symbol)
	defer unlock()

	txs, err := s.transactions.ListBySymbol(ctx, portfolioID, symbol)
	if err != nil {
		return nil, err
	}
	state := ReplayTransactions(txs)

	rec := &models.PositionRecalculation{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		RealizedPnL: make(map[string]decimal.Decimal),
	}
	for _, tx := range txs {
		if pnl := state.RealizedPnL[tx.ID]; !tx.RealizedPnL.Equal(pnl) {
			rec.RealizedPnL[tx.ID] = pnl
		}
	}
	if state.Last != nil {
		rec.Position = &models.Position{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Name:        state.Name,
			AssetClass:  state.Last.AssetClass,
			Quantity:    state.Quantity,
			AvgCost:     state.AvgCost,
			Currency:    state.Last.Currency,
		}
	}

	if err := s.positions.ApplyRecalculation(ctx, rec); err != nil {
		return nil, err
	}

	for _, a := range state.Anomalies {
		s.logger.Warn("unmatched sell recorded as negative position",
			zap.String("portfolio_id", a.PortfolioID),
			zap.String("symbol", a.Symbol),
			zap.String("transaction_id", a.TransactionID),
			zap.String("sold", a.Sold.String()),
			zap.String("remaining", a.Remaining.String()))
	}
	return state, nil
}

// RecalculateAllPortfolios rebuilds every position of every portfolio. One
// symbol failing is logged and counted.
func (s *ledgerService) RecalculateAllPortfolios(ctx context.Context) (*models.RecalculationSummary, error) {
	portfolios, err := s.portfolios.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.RecalculationSummary{}
	for _, p := range portfolios {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		symbols, err := s.transactions.DistinctSymbols(ctx, p.ID)
		if err != nil {
			s.logger.Error("failed to list portfolio symbols", zap.String("portfolio_id", p.ID), zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Portfolios++
		for _, symbol := range symbols {
			if _, err := s.recalculate(ctx, p.ID, symbol); err != nil {
				s.logger.Error("position recalculation failed",
					zap.String("portfolio_id", p.ID), zap.String("symbol", symbol), zap.Error(err))
				summary.Failed++
				continue
			}
			summary.Positions++
		}
	}
	s.logger.Info("recalculated all portfolios",
		zap.Int("portfolios", summary.Portfolios),
		zap.Int("positions", summary.Positions),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// logStalePosition reports a ledger write whose position rebuild failed.
func (s *ledgerService) logStalePosition(portfolioID, symbol string, err error) {
	s.logger.Error("transaction stored but position not rebuilt, run a full recalculation to repair",
		zap.String("portfolio_id", portfolioID), zap.String("symbol", symbol), zap.Error(err))
}

// invalidateSnapshots runs after the position rebuild, so a snapshot saved
// from the old positions in between is removed too.
func (s *ledgerService) invalidateSnapshots(ctx context.Context, portfolioID string, executedAt time.Time) {
	from := models.DateOf(executedAt)
	n, err := s.snapshots.DeleteFrom(ctx, portfolioID, from)
	if err != nil {
		s.logger.Error("failed to invalidate snapshots",
			zap.String("portfolio_id", portfolioID), zap.Time("from", from), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("invalidated snapshots",
			zap.String("portfolio_id", portfolioID), zap.Time("from", from), zap.Int64("count", n))
	}
}
