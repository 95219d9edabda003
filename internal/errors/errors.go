package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrValidation is returned for malformed input, before anything is persisted.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// NotFoundError reports a resource (or a symbol at a quote source) that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProviderError wraps a transport or parsing failure of an upstream quote source.
type ProviderError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s provider error for %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AnomalyWarning marks a sell or withdraw that had no matching holding.
// It is reported, never returned as a failure.
type AnomalyWarning struct {
	PortfolioID   string
	Symbol        string
	TransactionID string
	Sold          decimal.Decimal
	Remaining     decimal.Decimal
}

func (e *AnomalyWarning) Error() string {
	return fmt.Sprintf("unmatched sell of %s %s in portfolio %s (transaction %s) left quantity %s",
		e.Sold.String(), e.Symbol, e.PortfolioID, e.TransactionID, e.Remaining.String())
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewProviderError(provider, symbol string, err error) error {
	return &ProviderError{Provider: provider, Symbol: symbol, Err: err}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return stderrors.As(err, &target)
}

func IsProviderError(err error) bool {
	var target *ProviderError
	return stderrors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return stderrors.As(err, &target)
}
