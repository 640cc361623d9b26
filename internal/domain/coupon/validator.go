package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request is the input of a validation.
type Request struct {
	Code     string
	UserID   uuid.UUID
	Subtotal decimal.Decimal
	// RestaurantID is uuid.Nil when the caller has no restaurant context.
	RestaurantID uuid.UUID
}

// Result is the outcome of a validation. Rejections are results, not errors.
type Result struct {
	Valid       bool
	Reason      Reason
	Message     string
	Discount    decimal.Decimal
	CouponID    uuid.UUID
	Code        string
	Description string
}

func reject(reason Reason, msg string) *Result {
	return &Result{Reason: reason, Message: msg, Discount: decimal.Zero}
}

// Validator decides coupon eligibility without mutating anything.
type Validator struct {
	store  Store
	orders OrderHistory
	now    func() time.Time
}

// NewValidator creates a Validator backed by the given store and order history.
func NewValidator(store Store, orders OrderHistory) *Validator {
	return &Validator{store: store, orders: orders, now: time.Now}
}

// Validate looks the coupon up by code and runs every eligibility check in
// order, stopping at the first failure. The returned error is non-nil only
// for infrastructure failures.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return reject(ReasonNotFound, "coupon not found"), nil
	}

	c, err := v.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(ReasonNotFound, "coupon not found"), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	return v.evaluate(ctx, c, req, uuid.Nil)
}

// evaluate runs checks after the lookup. excludeOrderID is the order the
// coupon is being applied to, which must not count as a prior order.
func (v *Validator) evaluate(ctx context.Context, c *Coupon, req Request, excludeOrderID uuid.UUID) (*Result, error) {
	if !c.Active {
		return reject(ReasonInactive, "coupon is inactive"), nil
	}
	if !v.now().Before(c.ValidUntil) {
		return reject(ReasonExpired, "coupon expired"), nil
	}
	if c.MaxUses != nil && c.Uses >= *c.MaxUses {
		return reject(ReasonExhausted, "coupon usage limit reached"), nil
	}
	if c.RestaurantID != nil && *c.RestaurantID != req.RestaurantID {
		return reject(ReasonWrongRestaurant, "coupon is not valid for this restaurant"), nil
	}
	if c.MinSubtotal != nil && req.Subtotal.LessThan(*c.MinSubtotal) {
		return reject(ReasonBelowMinimum,
			fmt.Sprintf("minimum order subtotal is %s", c.MinSubtotal.StringFixed(2))), nil
	}

	if c.FirstOrderOnly {
		prior, err := v.orders.CountPriorOrders(ctx, req.UserID, excludeOrderID)
		if err != nil {
			return nil, errors.Wrap(err, "count prior orders")
		}
		if prior > 0 {
			return reject(ReasonNotFirstOrder, "coupon is valid only for the first order"), nil
		}
	}

	if c.MaxUsesPerUser != nil {
		used, err := v.store.CountUserUsages(ctx, c.ID, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usages")
		}
		if used >= *c.MaxUsesPerUser {
			return reject(ReasonPerUserLimitReached,
				fmt.Sprintf("coupon already used %d time(s)", used)), nil
		}
	}

	discount, err := Discount(c.Rule, req.Subtotal)
	if err != nil {
		return nil, errors.Wrapf(err, "compute discount for %s", c.Code)
	}

	return &Result{
		Valid:       true,
		Message:     "coupon is valid",
		Discount:    discount,
		CouponID:    c.ID,
		Code:        c.Code,
		Description: c.Description,
	}, nil
}
