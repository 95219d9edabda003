package repositories

import (
	"context"
	"time"

	"github.com/tropicaldog17/networth/internal/models"
)

// PortfolioRepository defines the interface for portfolio data operations
type PortfolioRepository interface {
	Create(ctx context.Context, p *models.Portfolio) error
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	List(ctx context.Context) ([]*models.Portfolio, error)
}

// TransactionRepository defines the interface for ledger data operations.
// Every list is ordered by execution time, then insertion sequence.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	Delete(ctx context.Context, id string) error
	ListBySymbol(ctx context.Context, portfolioID, symbol string) ([]*models.Transaction, error)
	// ListByPortfolio returns the transactions executed strictly before until; a zero until means all of them.
	ListByPortfolio(ctx context.Context, portfolioID string, until time.Time) ([]*models.Transaction, error)
	DistinctSymbols(ctx context.Context, portfolioID string) ([]string, error)
}

// PositionRepository defines the interface for derived position data
type PositionRepository interface {
	Get(ctx context.Context, portfolioID, symbol string) (*models.Position, error)
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Position, error)
	// DistinctHeld returns every (symbol, asset class) with a non-zero quantity in any portfolio.
	DistinctHeld(ctx context.Context) ([]models.PriceRequest, error)
	// ApplyRecalculation writes realized P&L values and the position row in one database transaction.
	ApplyRecalculation(ctx context.Context, rec *models.PositionRecalculation) error
}

// SnapshotRepository defines the interface for net-worth snapshots
type SnapshotRepository interface {
	// Upsert creates or replaces the snapshot of (portfolio, snapshot date).
	Upsert(ctx context.Context, s *models.NetWorthSnapshot) error
	ListSince(ctx context.Context, portfolioID string, from time.Time) ([]*models.NetWorthSnapshot, error)
	// DeleteFrom removes snapshots dated on or after from and returns how many were removed.
	DeleteFrom(ctx context.Context, portfolioID string, from time.Time) (int64, error)
}
