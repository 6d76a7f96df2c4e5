// Package validation provides custom validation rules for the application.
package validation

import (
	"strings"
	"unicode"

	validation "github.com/jellydator/validation"
	"github.com/shopspring/decimal"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// Printable validates that a string has no control characters.
var Printable = validation.NewStringRuleWithError(
	func(s string) bool {
		for _, r := range s {
			if !unicode.IsPrint(r) {
				return false
			}
		}
		return true
	},
	validation.NewError("validation_printable", "must not contain control characters"),
)

// PositiveAmount validates that a decimal.Decimal is greater than zero.
var PositiveAmount = validation.By(func(value interface{}) error {
	amount, ok := asDecimal(value)
	if !ok {
		return validation.NewError("validation_amount_type", "must be a decimal amount")
	}
	if !amount.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be greater than zero")
	}
	return nil
})

// MaxDecimalPlaces validates that a decimal.Decimal has at most places fractional digits.
type MaxDecimalPlaces int

// Validate checks the number of fractional digits.
func (p MaxDecimalPlaces) Validate(value interface{}) error {
	amount, ok := asDecimal(value)
	if !ok {
		return validation.NewError("validation_amount_type", "must be a decimal amount")
	}
	if !amount.Equal(amount.Truncate(int32(p))) {
		return validation.NewError("validation_amount_scale", "must have at most 2 decimal places").
			SetParams(map[string]interface{}{"places": int(p)})
	}
	return nil
}

func asDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	default:
		return decimal.Zero, false
	}
}
