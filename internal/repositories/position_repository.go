package repositories

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gorm.io/gorm"

	"github.com/tropicaldog17/networth/internal/db"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

type positionRepository struct {
	db *db.DB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(database *db.DB) PositionRepository {
	return &positionRepository{db: database}
}

func (r *positionRepository) Get(ctx context.Context, portfolioID, symbol string) (*models.Position, error) {
	var p models.Position
	err := r.db.WithContext(ctx).First(&p, "portfolio_id = ? AND symbol = ?", portfolioID, symbol).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("position", portfolioID+"/"+symbol)
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &p, nil
}

func (r *positionRepository) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Position, error) {
	var out []*models.Position
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("asset_class ASC, symbol ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return out, nil
}

func (r *positionRepository) DistinctHeld(ctx context.Context) ([]models.PriceRequest, error) {
	var out []models.PriceRequest
	err := r.db.WithContext(ctx).Model(&models.Position{}).
		Distinct("symbol", "asset_class").
		Where("quantity <> 0").
		Order("asset_class ASC, symbol ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list held symbols: %w", err)
	}
	return out, nil
}

func (r *positionRepository) ApplyRecalculation(ctx context.Context, rec *models.PositionRecalculation) error {
	err := r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		// Fixed update order keeps concurrent recomputes of different keys from deadlocking.
		for _, id := range slices.Sorted(maps.Keys(rec.RealizedPnL)) {
			if err := gtx.Model(&models.Transaction{}).
				Where("id = ?", id).
				Update("realized_pnl", rec.RealizedPnL[id]).Error; err != nil {
				return err
			}
		}

		if rec.Position == nil {
			return gtx.Where("portfolio_id = ? AND symbol = ?", rec.PortfolioID, rec.Symbol).
				Delete(&models.Position{}).Error
		}

		var existing models.Position
		err := gtx.First(&existing, "portfolio_id = ? AND symbol = ?", rec.PortfolioID, rec.Symbol).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return gtx.Create(rec.Position).Error
		case err != nil:
			return err
		}
		rec.Position.ID = existing.ID
		rec.Position.CreatedAt = existing.CreatedAt
		return gtx.Save(rec.Position).Error
	})
	if err != nil {
		return fmt.Errorf("failed to apply position recalculation: %w", err)
	}
	return nil
}
