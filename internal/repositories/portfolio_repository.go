package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tropicaldog17/networth/internal/db"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

type portfolioRepository struct {
	db *db.DB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(database *db.DB) PortfolioRepository {
	return &portfolioRepository{db: database}
}

func (r *portfolioRepository) Create(ctx context.Context, p *models.Portfolio) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

func (r *portfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("portfolio", id)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

func (r *portfolioRepository) List(ctx context.Context) ([]*models.Portfolio, error) {
	var out []*models.Portfolio
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	return out, nil
}
