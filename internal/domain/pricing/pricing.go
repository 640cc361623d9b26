// Package pricing computes order totals from price snapshots.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoLines is returned when a breakdown is requested for an empty cart.
var ErrNoLines = errors.New("at least one line is required")

// MaxQuantity is the largest quantity accepted for a single line.
const MaxQuantity = 999

// MaxAmount is the largest amount a NUMERIC(10,2) column holds.
var MaxAmount = decimal.RequireFromString("99999999.99")

// ValidQuantity reports whether q is within [1, MaxQuantity].
func ValidQuantity(q int) bool {
	return q > 0 && q <= MaxQuantity
}

// InvalidQuantityError indicates a line quantity outside [1, MaxQuantity].
type InvalidQuantityError struct {
	ProductID uuid.UUID
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s (got %d)", MaxQuantity, e.ProductID, e.Quantity)
}

// AmountTooLargeError indicates a computed amount exceeds MaxAmount.
type AmountTooLargeError struct {
	Field  string
	Amount decimal.Decimal
}

func (e *AmountTooLargeError) Error() string {
	return fmt.Sprintf("%s %s exceeds the maximum of %s", e.Field, e.Amount.StringFixed(2), MaxAmount.StringFixed(2))
}

// Line is one priced cart entry. UnitPrice is the snapshot taken when the
// order is composed, not the live catalog price.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown holds the monetary summary of an order.
type Breakdown struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// Calculate sums the lines and adds the delivery fee. All amounts are
// rounded to cents.
func Calculate(lines []Line, deliveryFee decimal.Decimal) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, ErrNoLines
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		if !ValidQuantity(l.Quantity) {
			return Breakdown{}, &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		subtotal = subtotal.Add(l.Total())
	}

	subtotal = subtotal.Round(2)
	fee := floorAtZero(deliveryFee).Round(2)
	total := subtotal.Add(fee)

	switch {
	case subtotal.GreaterThan(MaxAmount):
		return Breakdown{}, &AmountTooLargeError{Field: "subtotal", Amount: subtotal}
	case total.GreaterThan(MaxAmount):
		return Breakdown{}, &AmountTooLargeError{Field: "total", Amount: total}
	}

	return Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Discount:    decimal.Zero,
		Total:       total,
	}, nil
}

// WithDiscount returns a copy of b with the discount applied. The discount
// is clamped to [0, Subtotal] so the total never drops below the delivery fee.
func (b Breakdown) WithDiscount(discount decimal.Decimal) Breakdown {
	d := decimal.Min(floorAtZero(discount), b.Subtotal).Round(2)

	b.Discount = d
	b.Total = b.Subtotal.Sub(d).Add(b.DeliveryFee)
	return b
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
