package domain

import (
	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the precision of the single supported currency.
const MinorUnitExponent = -2

// ValidateAmount checks that amount is a positive value expressible in
// currency minor units.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid(field, "Amount must be greater than zero.")
	}
	if !amount.Equal(amount.Truncate(-MinorUnitExponent)) {
		return Invalid(field, "Amount cannot have more than two decimal places.")
	}
	return nil
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(-MinorUnitExponent)
}
