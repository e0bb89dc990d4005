package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// IsCents reports whether d has no more than two decimal places.
func IsCents(d decimal.Decimal) bool {
	return d.Mul(hundred).Equal(d.Mul(hundred).Floor())
}

// ValidateAmount checks that d is a positive amount in whole cents.
func ValidateAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	if !IsCents(d) {
		return Invalid(field, "more than 2 decimal places")
	}
	return nil
}
