package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
)

// TransactionType is the ledger event kind.
type TransactionType string

const (
	TransactionTypeBuy      TransactionType = "buy"
	TransactionTypeSell     TransactionType = "sell"
	TransactionTypeDividend TransactionType = "dividend"
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeBuy, TransactionTypeSell, TransactionTypeDividend, TransactionTypeDeposit, TransactionTypeWithdraw:
		return true
	}
	return false
}

// Acquires reports whether the event adds units at a cost (buy, deposit).
func (t TransactionType) Acquires() bool {
	return t == TransactionTypeBuy || t == TransactionTypeDeposit
}

// Disposes reports whether the event removes units (sell, withdraw).
func (t TransactionType) Disposes() bool {
	return t == TransactionTypeSell || t == TransactionTypeWithdraw
}

// Transaction is one entry of the append-only ledger.
// RealizedPnL is derived by the ledger replay and never accepted as input.
type Transaction struct {
	ID          string          `json:"id" gorm:"primaryKey;column:id;type:varchar(36)"`
	PortfolioID string          `json:"portfolio_id" gorm:"column:portfolio_id;type:varchar(36);not null;index:idx_transactions_portfolio_symbol,priority:1"`
	Symbol      string          `json:"symbol" gorm:"column:symbol;type:varchar(32);not null;index:idx_transactions_portfolio_symbol,priority:2"`
	AssetName   *string         `json:"asset_name,omitempty" gorm:"column:asset_name;type:varchar(255)"`
	AssetClass  AssetClass      `json:"asset_class" gorm:"column:asset_class;type:varchar(20);not null"`
	Type        TransactionType `json:"type" gorm:"column:type;type:varchar(20);not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"column:quantity;type:decimal(30,18);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"column:unit_price;type:decimal(30,18);not null"`
	Fee         decimal.Decimal `json:"fee" gorm:"column:fee;type:decimal(30,18);not null;default:0"`
	Currency    string          `json:"currency" gorm:"column:currency;type:varchar(3);not null"`
	ExecutedAt  time.Time       `json:"executed_at" gorm:"column:executed_at;not null;index"`
	Note        *string         `json:"note,omitempty" gorm:"column:note;type:text"`
	RealizedPnL decimal.Decimal `json:"realized_pnl" gorm:"column:realized_pnl;type:decimal(30,8);not null;default:0"`

	// Sequence is the per-portfolio insertion order, used to break ties on ExecutedAt.
	Sequence int64 `json:"sequence" gorm:"column:sequence;not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Normalize canonicalizes casing and stores ExecutedAt in UTC.
func (t *Transaction) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	t.AssetClass = AssetClass(strings.ToLower(string(t.AssetClass)))
	t.Type = TransactionType(strings.ToLower(string(t.Type)))
	t.ExecutedAt = t.ExecutedAt.UTC()
}

// Validate checks the input fields. It does not look at RealizedPnL.
func (t *Transaction) Validate() error {
	if t.PortfolioID == "" {
		return &apperrors.ErrValidation{Field: "portfolio_id", Message: "is required"}
	}
	if t.Symbol == "" {
		return &apperrors.ErrValidation{Field: "symbol", Message: "is required"}
	}
	if !t.AssetClass.Valid() {
		return &apperrors.ErrValidation{Field: "asset_class", Message: "unknown asset class " + string(t.AssetClass)}
	}
	if !t.Type.Valid() {
		return &apperrors.ErrValidation{Field: "type", Message: "unknown transaction type " + string(t.Type)}
	}
	if !t.Quantity.IsPositive() {
		return &apperrors.ErrValidation{Field: "quantity", Message: "must be positive"}
	}
	if t.UnitPrice.IsNegative() {
		return &apperrors.ErrValidation{Field: "unit_price", Message: "must not be negative"}
	}
	if t.Fee.IsNegative() {
		return &apperrors.ErrValidation{Field: "fee", Message: "must not be negative"}
	}
	if len(t.Currency) != 3 {
		return &apperrors.ErrValidation{Field: "currency", Message: "must be a 3-letter currency code"}
	}
	if t.ExecutedAt.IsZero() {
		return &apperrors.ErrValidation{Field: "executed_at", Message: "is required"}
	}
	return nil
}

// TransactionUpdate is a partial edit. Nil fields are left unchanged.
type TransactionUpdate struct {
	Symbol     *string          `json:"symbol,omitempty"`
	AssetName  *string          `json:"asset_name,omitempty"`
	AssetClass *AssetClass      `json:"asset_class,omitempty"`
	Type       *TransactionType `json:"type,omitempty"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	Fee        *decimal.Decimal `json:"fee,omitempty"`
	Currency   *string          `json:"currency,omitempty"`
	ExecutedAt *time.Time       `json:"executed_at,omitempty"`
	Note       *string          `json:"note,omitempty"`
}

// Apply copies the set fields of u onto t.
func (u *TransactionUpdate) Apply(t *Transaction) {
	if u.Symbol != nil {
		t.Symbol = *u.Symbol
	}
	if u.AssetName != nil {
		t.AssetName = u.AssetName
	}
	if u.AssetClass != nil {
		t.AssetClass = *u.AssetClass
	}
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.Quantity != nil {
		t.Quantity = *u.Quantity
	}
	if u.UnitPrice != nil {
		t.UnitPrice = *u.UnitPrice
	}
	if u.Fee != nil {
		t.Fee = *u.Fee
	}
	if u.Currency != nil {
		t.Currency = *u.Currency
	}
	if u.ExecutedAt != nil {
		t.ExecutedAt = *u.ExecutedAt
	}
	if u.Note != nil {
		t.Note = u.Note
	}
	t.Normalize()
}
