package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tropicaldog17/networth/internal/db"
	apperrors "github.com/tropicaldog17/networth/internal/errors"
	"github.com/tropicaldog17/networth/internal/models"
)

const ledgerOrder = "executed_at ASC, sequence ASC, id ASC"

type transactionRepository struct {
	db *db.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(database *db.DB) TransactionRepository {
	return &transactionRepository{db: database}
}

// Create stores tx and stamps it with the next insertion sequence of its portfolio.
// The portfolio row is locked so concurrent creates never share a sequence.
func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	err := r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		var locked []string
		if err := gtx.Model(&models.Portfolio{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", tx.PortfolioID).
			Pluck("id", &locked).Error; err != nil {
			return err
		}

		var last int64
		if err := gtx.Model(&models.Transaction{}).
			Where("portfolio_id = ?", tx.PortfolioID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		tx.Sequence = last + 1
		return gtx.Create(tx).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, apperrors.NewNotFound("transaction", id)
	}

	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("transaction", id)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", tx.ID).Select(
		"symbol", "asset_name", "asset_class", "type", "quantity", "unit_price", "fee",
		"currency", "executed_at", "note", "updated_at",
	).Updates(tx)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("transaction", tx.ID)
	}
	return nil
}

func (r *transactionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Transaction{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("transaction", id)
	}
	return nil
}

func (r *transactionRepository) ListBySymbol(ctx context.Context, portfolioID, symbol string) ([]*models.Transaction, error) {
	var out []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ? AND symbol = ?", portfolioID, symbol).
		Order(ledgerOrder).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

func (r *transactionRepository) ListByPortfolio(ctx context.Context, portfolioID string, until time.Time) ([]*models.Transaction, error) {
	query := r.db.WithContext(ctx).Where("portfolio_id = ?", portfolioID)
	if !until.IsZero() {
		query = query.Where("executed_at < ?", until.UTC())
	}

	var out []*models.Transaction
	if err := query.Order(ledgerOrder).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

func (r *transactionRepository) DistinctSymbols(ctx context.Context, portfolioID string) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("portfolio_id = ?", portfolioID).
		Distinct().
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return symbols, nil
}
