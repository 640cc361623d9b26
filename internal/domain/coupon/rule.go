package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/pricing"
)

// Kind is the stored discriminator of a Rule.
type Kind string

const (
	KindPercentage Kind = "PERCENTAGE"
	KindFixed      Kind = "FIXED"
)

var hundred = decimal.NewFromInt(100)

// Rule is the discount shape of a coupon. It is implemented only by
// Percentage and Fixed.
type Rule interface {
	Kind() Kind
	rule()
}

// Percentage takes Value percent of the subtotal, optionally capped.
type Percentage struct {
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal
}

func (Percentage) Kind() Kind { return KindPercentage }
func (Percentage) rule()      {}

// Fixed takes a flat amount off the subtotal.
type Fixed struct {
	Value decimal.Decimal
}

func (Fixed) Kind() Kind { return KindFixed }
func (Fixed) rule()      {}

// NewRule builds a Rule from its stored representation.
func NewRule(kind Kind, value decimal.Decimal, maxDiscount *decimal.Decimal) (Rule, error) {
	switch kind {
	case KindPercentage:
		return Percentage{Value: value, MaxDiscount: maxDiscount}, nil
	case KindFixed:
		return Fixed{Value: value}, nil
	default:
		return nil, errors.Errorf("unsupported coupon kind: %q", kind)
	}
}

// Value returns the rule's configured value and cap.
func Value(r Rule) (value decimal.Decimal, maxDiscount *decimal.Decimal) {
	switch r := r.(type) {
	case Percentage:
		return r.Value, r.MaxDiscount
	case Fixed:
		return r.Value, nil
	default:
		return decimal.Zero, nil
	}
}

// RuleError describes an invalid coupon definition.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid coupon %s: %s", e.Field, e.Reason)
}

// checkAmount rejects amounts that a NUMERIC(10,2) column would round or
// refuse.
func checkAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return &RuleError{Field: field, Reason: "must have at most 2 decimal places"}
	}
	if d.GreaterThan(pricing.MaxAmount) {
		return &RuleError{Field: field, Reason: "must not exceed " + pricing.MaxAmount.StringFixed(2)}
	}
	return nil
}

// ValidateRule checks the value constraints of r.
func ValidateRule(r Rule) error {
	switch r := r.(type) {
	case Percentage:
		if !r.Value.IsPositive() || r.Value.GreaterThan(hundred) {
			return &RuleError{Field: "value", Reason: "percentage must be in (0, 100]"}
		}
		if err := checkAmount("value", r.Value); err != nil {
			return err
		}
		if r.MaxDiscount != nil {
			if !r.MaxDiscount.IsPositive() {
				return &RuleError{Field: "maxDiscount", Reason: "must be greater than 0"}
			}
			return checkAmount("maxDiscount", *r.MaxDiscount)
		}
		return nil
	case Fixed:
		if !r.Value.IsPositive() {
			return &RuleError{Field: "value", Reason: "fixed amount must be greater than 0"}
		}
		return checkAmount("value", r.Value)
	default:
		return &RuleError{Field: "kind", Reason: "unsupported"}
	}
}

// Discount computes the amount r takes off subtotal, rounded to cents and
// never more than the subtotal itself.
func Discount(r Rule, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch r := r.(type) {
	case Percentage:
		amount = subtotal.Mul(r.Value).Div(hundred)
		if r.MaxDiscount != nil {
			amount = decimal.Min(amount, *r.MaxDiscount)
		}
	case Fixed:
		amount = r.Value
	default:
		return decimal.Zero, errors.Errorf("unsupported rule type %T", r)
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}
