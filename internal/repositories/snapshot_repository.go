package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/tropicaldog17/networth/internal/db"
	"github.com/tropicaldog17/networth/internal/models"
)

type snapshotRepository struct {
	db *db.DB
}

// NewSnapshotRepository creates a new net-worth snapshot repository
func NewSnapshotRepository(database *db.DB) SnapshotRepository {
	return &snapshotRepository{db: database}
}

func (r *snapshotRepository) Upsert(ctx context.Context, s *models.NetWorthSnapshot) error {
	s.SnapshotDate = models.DateOf(s.SnapshotDate)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "portfolio_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_assets", "total_liabilities", "net_worth", "breakdown", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	// On conflict the stored row keeps its original id.
	var stored models.NetWorthSnapshot
	if err := r.db.WithContext(ctx).
		First(&stored, "portfolio_id = ? AND snapshot_date = ?", s.PortfolioID, s.SnapshotDate).Error; err != nil {
		return fmt.Errorf("failed to reload snapshot: %w", err)
	}
	*s = stored
	return nil
}

func (r *snapshotRepository) ListSince(ctx context.Context, portfolioID string, from time.Time) ([]*models.NetWorthSnapshot, error) {
	var out []*models.NetWorthSnapshot
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ? AND snapshot_date >= ?", portfolioID, models.DateOf(from)).
		Order("snapshot_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return out, nil
}

func (r *snapshotRepository) DeleteFrom(ctx context.Context, portfolioID string, from time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("portfolio_id = ? AND snapshot_date >= ?", portfolioID, models.DateOf(from)).
		Delete(&models.NetWorthSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
