package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyRequest is the input of Ledger.Apply.
type ApplyRequest struct {
	Code         string
	UserID       uuid.UUID
	OrderID      uuid.UUID
	Subtotal     decimal.Decimal
	RestaurantID uuid.UUID
}

// Ledger is the only code path that increments a coupon's usage counter.
type Ledger struct {
	validator *Validator
	store     LedgerStore
	tx        Transactor
	now       func() time.Time
}

// NewLedger creates a Ledger. The validator must read through the same
// storage as store so that checks observe the locked row.
func NewLedger(validator *Validator, store LedgerStore, tx Transactor) *Ledger {
	return &Ledger{validator: validator, store: store, tx: tx, now: time.Now}
}

// Apply re-validates the coupon under a row lock, records the usage and
// increments the counter as one unit. A coupon that became ineligible since
// it was quoted yields *InvalidError.
func (l *Ledger) Apply(ctx context.Context, req ApplyRequest) (*Usage, error) {
	var usage *Usage
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := l.store.LockByCode(ctx, NormalizeCode(req.Code))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &InvalidError{Reason: ReasonNotFound, Message: "coupon not found"}
			}
			return errors.Wrap(err, "lock coupon")
		}

		res, err := l.validator.evaluate(ctx, c, Request{
			Code:         c.Code,
			UserID:       req.UserID,
			Subtotal:     req.Subtotal,
			RestaurantID: req.RestaurantID,
		}, req.OrderID)
		if err != nil {
			return err
		}
		if !res.Valid {
			return &InvalidError{Reason: res.Reason, Message: res.Message}
		}

		u := &Usage{
			ID:         uuid.New(),
			CouponID:   c.ID,
			CouponCode: c.Code,
			UserID:     req.UserID,
			OrderID:    req.OrderID,
			Discount:   res.Discount,
			CreatedAt:  l.now(),
		}
		if err := l.store.RecordUsage(ctx, u); err != nil {
			return errors.Wrap(err, "record usage")
		}

		ok, err := l.store.IncrementUses(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "increment uses")
		}
		if !ok {
			return &InvalidError{Reason: ReasonExhausted, Message: "coupon usage limit reached"}
		}

		usage = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon applied",
		zap.String("code", usage.CouponCode),
		zap.Stringer("order_id", usage.OrderID),
		zap.String("discount", usage.Discount.StringFixed(2)),
	)
	return usage, nil
}
