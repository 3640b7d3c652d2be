package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrSameAccount   = fmt.Errorf("%w: sender and receiver are the same account", ErrInvalidInput)
	ErrLimitExceeded = fmt.Errorf("%w: amount exceeds the per-transfer limit", ErrInvalidInput)

	ErrNotFound         = errors.New("not found")
	ErrAccountNotFound  = fmt.Errorf("account %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrAccountMismatch  = fmt.Errorf("account does not belong to customer: %w", ErrNotFound)
	ErrNoSavingsAccount = fmt.Errorf("savings account %w", ErrNotFound)

	ErrInsufficientFunds = errors.New("account does not have enough balance for this debit amount")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrDuplicate         = errors.New("customer already exists")
)

// ValidationError is a client error detected before any row is locked.
// Message is meant to be shown to the user as is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// InsufficientFundsError reports the balance observed under the row lock.
type InsufficientFundsError struct {
	AccountNo string
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account %s: %s (available %s)", e.AccountNo, ErrInsufficientFunds, e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
