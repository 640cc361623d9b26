// Package checkout composes order creation with coupon application.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
)

// ErrQuoteChanged is returned when the discount computed under the coupon
// lock differs from the one the order was priced with.
var ErrQuoteChanged = errors.New("coupon discount changed during checkout")

// Orders quotes and persists orders.
type Orders interface {
	Quote(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Place(ctx context.Context, o *order.Order) error
	Publish(ctx context.Context, e order.Event)
}

// Coupons estimates coupon discounts.
type Coupons interface {
	Validate(ctx context.Context, req coupon.Request) (*coupon.Result, error)
}

// Ledger applies a coupon to a placed order.
type Ledger interface {
	Apply(ctx context.Context, req coupon.ApplyRequest) (*coupon.Usage, error)
}

// Request is a checkout request. CouponCode is optional.
type Request struct {
	order.CreateRequest
	CouponCode string
}

// Result is a placed order with its coupon usage, if any.
type Result struct {
	Order *order.Order
	Usage *coupon.Usage
}

// Service places orders, optionally discounted by a coupon.
type Service struct {
	orders  Orders
	coupons Coupons
	ledger  Ledger
	tx      coupon.Transactor

	tracer   trace.Tracer
	placed   metric.Int64Counter
	applied  metric.Int64Counter
	rejected metric.Int64Counter
}

// New creates a checkout Service.
func New(
	orders Orders,
	coupons Coupons,
	ledger Ledger,
	tx coupon.Transactor,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("delivery/checkout")
	s := &Service{
		orders:  orders,
		coupons: coupons,
		ledger:  ledger,
		tx:      tx,
		tracer:  tp.Tracer("delivery/checkout"),
	}

	var err error
	if s.placed, err = meter.Int64Counter("delivery.orders.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	if s.applied, err = meter.Int64Counter("delivery.coupons.applied",
		metric.WithDescription("Coupons applied to orders"),
	); err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}
	if s.rejected, err = meter.Int64Counter("delivery.coupons.rejected",
		metric.WithDescription("Coupons rejected at checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	return s, nil
}

// PlaceOrder prices the cart, estimates the coupon discount and then
// persists the order and applies the coupon in one transaction. An ineligible
// coupon fails the checkout with *coupon.InvalidError and nothing is stored.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder",
		trace.WithAttributes(attribute.Bool("coupon", req.CouponCode != "")),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o, err := s.orders.Quote(ctx, req.CreateRequest)
	if err != nil {
		return nil, err
	}

	code := coupon.NormalizeCode(req.CouponCode)
	if code != "" {
		res, err := s.coupons.Validate(ctx, coupon.Request{
			Code:         code,
			UserID:       o.CustomerID,
			Subtotal:     o.Subtotal,
			RestaurantID: o.RestaurantID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if !res.Valid {
			s.reject(ctx, res.Reason)
			return nil, &coupon.InvalidError{Reason: res.Reason, Message: res.Message}
		}
		o.ApplyDiscount(res.Code, res.Discount)
	}

	var usage *coupon.Usage
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Place(ctx, o); err != nil {
			return err
		}
		if code == "" {
			return nil
		}

		u, err := s.ledger.Apply(ctx, coupon.ApplyRequest{
			Code:         code,
			UserID:       o.CustomerID,
			OrderID:      o.ID,
			Subtotal:     o.Subtotal,
			RestaurantID: o.RestaurantID,
		})
		if err != nil {
			return err
		}
		if !u.Discount.Equal(o.Discount) {
			return ErrQuoteChanged
		}
		usage = u
		return nil
	})
	if err != nil {
		var invErr *coupon.InvalidError
		if errors.As(err, &invErr) {
			s.reject(ctx, invErr.Reason)
		}
		return nil, err
	}

	s.placed.Add(ctx, 1)
	if usage != nil {
		s.applied.Add(ctx, 1)
	}
	zctx.From(ctx).Info("Checkout completed",
		zap.Stringer("order_id", o.ID),
		zap.String("coupon", o.CouponCode),
		zap.String("total", o.Total.StringFixed(2)),
	)
	s.orders.Publish(ctx, order.Event{Type: order.EventCreated, Order: o, At: o.CreatedAt})

	return &Result{Order: o, Usage: usage}, nil
}

func (s *Service) reject(ctx context.Context, reason coupon.Reason) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	zctx.From(ctx).Info("Coupon rejected at checkout", zap.String("reason", string(reason)))
}
