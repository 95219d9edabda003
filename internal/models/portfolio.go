package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
)

type Portfolio struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	Name         string    `json:"name" gorm:"column:name;type:varchar(100);not null"`
	BaseCurrency string    `json:"base_currency" gorm:"column:base_currency;type:varchar(3);not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

func (p *Portfolio) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Portfolio) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &apperrors.ErrValidation{Field: "name", Message: "is required"}
	}
	if len(p.BaseCurrency) != 3 {
		return &apperrors.ErrValidation{Field: "base_currency", Message: "must be a 3-letter currency code"}
	}
	return nil
}
