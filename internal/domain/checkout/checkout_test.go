package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
)

type fakeOrders struct {
	quote    *order.Order
	quoteErr error
	placeErr error
	placed   []*order.Order
	events   []order.Event
}

func (f *fakeOrders) Quote(context.Context, order.CreateRequest) (*order.Order, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	cp := *f.quote
	return &cp, nil
}

func (f *fakeOrders) Place(_ context.Context, o *order.Order) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	o.CreatedAt = time.Now()
	f.placed = append(f.placed, o)
	return nil
}

func (f *fakeOrders) Publish(_ context.Context, e order.Event) {
	f.events = append(f.events, e)
}

type fakeCoupons struct {
	result *coupon.Result
	err    error
	calls  int
}

func (f *fakeCoupons) Validate(context.Context, coupon.Request) (*coupon.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeLedger struct {
	discount decimal.Decimal
	err      error
	reqs     []coupon.ApplyRequest
}

func (f *fakeLedger) Apply(_ context.Context, req coupon.ApplyRequest) (*coupon.Usage, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &coupon.Usage{ID: uuid.New(), CouponCode: req.Code, OrderID: req.OrderID, Discount: f.discount}, nil
}

// fakeTx discards everything the callback placed when it fails.
type fakeTx struct {
	orders     *fakeOrders
	rolledBack bool
}

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	n := len(t.orders.placed)
	if err := fn(ctx); err != nil {
		t.orders.placed = t.orders.placed[:n]
		t.rolledBack = true
		return err
	}
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quotedOrder() *order.Order {
	return &order.Order{
		ID:           uuid.New(),
		CustomerID:   uuid.New(),
		RestaurantID: uuid.New(),
		Subtotal:     dec("35.00"),
		DeliveryFee:  dec("8.50"),
		Discount:     decimal.Zero,
		Total:        dec("43.50"),
		Status:       order.StatusAwaitingRestaurant,
	}
}

type testEnv struct {
	svc     *Service
	orders  *fakeOrders
	coupons *fakeCoupons
	ledger  *fakeLedger
	tx      *fakeTx
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		orders: &fakeOrders{quote: quotedOrder()},
		coupons: &fakeCoupons{result: &coupon.Result{
			Valid:    true,
			Code:     "SAVE5",
			Discount: dec("5.00"),
		}},
		ledger: &fakeLedger{discount: dec("5.00")},
	}
	env.tx = &fakeTx{orders: env.orders}

	svc, err := New(env.orders, env.coupons, env.ledger, env.tx,
		tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	env.svc = svc
	return env
}

func TestPlaceOrder_NoCoupon(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.PlaceOrder(context.Background(), Request{})
	require.NoError(t, err)

	assert.Nil(t, res.Usage)
	assert.True(t, dec("43.50").Equal(res.Order.Total))
	assert.Empty(t, res.Order.CouponCode)
	assert.Zero(t, env.coupons.calls)
	assert.Empty(t, env.ledger.reqs)
	require.Len(t, env.orders.placed, 1)
	require.Len(t, env.orders.events, 1)
	assert.Equal(t, order.EventCreated, env.orders.events[0].Type)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: " save5 "})
	require.NoError(t, err)

	require.NotNil(t, res.Usage)
	assert.Equal(t, "SAVE5", res.Order.CouponCode)
	assert.True(t, dec("5.00").Equal(res.Order.Discount))
	assert.True(t, dec("38.50").Equal(res.Order.Total))

	require.Len(t, env.ledger.reqs, 1)
	applied := env.ledger.reqs[0]
	assert.Equal(t, "SAVE5", applied.Code)
	assert.Equal(t, res.Order.ID, applied.OrderID)
	assert.True(t, dec("35.00").Equal(applied.Subtotal))
	assert.Len(t, env.orders.events, 1)
}

func TestPlaceOrder_RejectedCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.coupons.result = &coupon.Result{Reason: coupon.ReasonBelowMinimum, Message: "minimum order subtotal is 50.00"}

	res, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "BIG"})
	assert.Nil(t, res)

	var invErr *coupon.InvalidError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, coupon.ReasonBelowMinimum, invErr.Reason)
	assert.Empty(t, env.orders.placed)
	assert.Empty(t, env.ledger.reqs)
	assert.Empty(t, env.orders.events)
}

func TestPlaceOrder_LostRaceRollsBackOrder(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.err = &coupon.InvalidError{Reason: coupon.ReasonExhausted, Message: "coupon usage limit reached"}

	_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})

	require.ErrorIs(t, err, coupon.ErrCouponInvalid)
	assert.True(t, env.tx.rolledBack)
	assert.Empty(t, env.orders.placed)
	assert.Empty(t, env.orders.events)
}

func TestPlaceOrder_QuoteChanged(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.discount = dec("4.00")

	_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})

	require.ErrorIs(t, err, ErrQuoteChanged)
	assert.True(t, env.tx.rolledBack)
	assert.Empty(t, env.orders.placed)
}

func TestPlaceOrder_Errors(t *testing.T) {
	t.Run("quote", func(t *testing.T) {
		env := newTestEnv(t)
		env.orders.quoteErr = order.ErrRestaurantUnavailable

		_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})
		require.ErrorIs(t, err, order.ErrRestaurantUnavailable)
		assert.Zero(t, env.coupons.calls)
	})
	t.Run("validate", func(t *testing.T) {
		env := newTestEnv(t)
		env.coupons.err = errors.New("db down")

		_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validate coupon")
	})
	t.Run("place", func(t *testing.T) {
		env := newTestEnv(t)
		env.orders.placeErr = errors.New("insert failed")

		_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})
		require.Error(t, err)
		assert.Empty(t, env.ledger.reqs)
	})
	t.Run("double apply", func(t *testing.T) {
		env := newTestEnv(t)
		env.ledger.err = coupon.ErrAlreadyApplied

		_, err := env.svc.PlaceOrder(context.Background(), Request{CouponCode: "SAVE5"})
		require.ErrorIs(t, err, coupon.ErrAlreadyApplied)
		assert.Empty(t, env.orders.placed)
	})
}
