package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-api/internal/domain/auth"
	"github.com/xenking/delivery-api/internal/domain/checkout"
	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
	"github.com/xenking/delivery-api/internal/domain/pricing"
)

// --- Fakes ---

type fakeOrders struct {
	order   *order.Order
	orders  []order.Order
	err     error
	lastReq order.TransitionRequest
	status  *order.Status
	viewer  auth.Principal
}

func (f *fakeOrders) Get(_ context.Context, _ uuid.UUID, viewer auth.Principal) (*order.Order, error) {
	f.viewer = viewer
	return f.order, f.err
}

func (f *fakeOrders) ListByCustomer(_ context.Context, _ uuid.UUID) ([]order.Order, error) {
	return f.orders, f.err
}

func (f *fakeOrders) ListByRestaurant(_ context.Context, _ uuid.UUID, viewer auth.Principal, status *order.Status) ([]order.Order, error) {
	f.viewer = viewer
	f.status = status
	return f.orders, f.err
}

func (f *fakeOrders) Transition(_ context.Context, req order.TransitionRequest) (*order.Order, error) {
	f.lastReq = req
	return f.order, f.err
}

func (f *fakeOrders) Cancel(_ context.Context, _, _ uuid.UUID) (*order.Order, error) {
	return f.order, f.err
}

type fakeCheckout struct {
	req checkout.Request
	res *checkout.Result
	err error
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	f.req = req
	return f.res, f.err
}

type fakeCoupons struct {
	coupon  *coupon.Coupon
	coupons []coupon.Coupon
	history []coupon.HistoryEntry
	err     error
	details *coupon.Details
	limit   int
	created coupon.CreateRequest
	updated coupon.UpdateRequest
	listed  struct {
		restaurantID *uuid.UUID
		active       *bool
	}
}

func (f *fakeCoupons) Create(_ context.Context, _ auth.Principal, req coupon.CreateRequest) (*coupon.Coupon, error) {
	f.created = req
	return f.coupon, f.err
}

func (f *fakeCoupons) Update(_ context.Context, _ auth.Principal, _ uuid.UUID, req coupon.UpdateRequest) (*coupon.Coupon, error) {
	f.updated = req
	return f.coupon, f.err
}

func (f *fakeCoupons) Get(_ context.Context, _ auth.Principal, _ uuid.UUID) (*coupon.Details, error) {
	return f.details, f.err
}

func (f *fakeCoupons) List(_ context.Context, _ auth.Principal, restaurantID *uuid.UUID, active *bool) ([]coupon.Coupon, error) {
	f.listed.restaurantID = restaurantID
	f.listed.active = active
	return f.coupons, f.err
}

func (f *fakeCoupons) GetByCode(_ context.Context, _ string) (*coupon.Coupon, error) {
	return f.coupon, f.err
}

func (f *fakeCoupons) ListActive(_ context.Context, _ *uuid.UUID) ([]coupon.Coupon, error) {
	return f.coupons, f.err
}

func (f *fakeCoupons) MostUsed(_ context.Context, limit int) ([]coupon.Coupon, error) {
	f.limit = limit
	return f.coupons, f.err
}

func (f *fakeCoupons) History(_ context.Context, _ uuid.UUID) ([]coupon.HistoryEntry, error) {
	return f.history, f.err
}

type fakeValidator struct {
	req coupon.Request
	res *coupon.Result
	err error
}

func (f *fakeValidator) Validate(_ context.Context, req coupon.Request) (*coupon.Result, error) {
	f.req = req
	return f.res, f.err
}

// --- Helpers ---

var (
	customerID   = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	ownerID      = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	adminID      = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	restaurantID = uuid.MustParse("00000000-0000-0000-0000-000000000101")
	orderID      = uuid.MustParse("00000000-0000-0000-0000-000000000501")
	productID    = uuid.MustParse("00000000-0000-0000-0000-000000000201")
)

type testEnv struct {
	router    http.Handler
	authn     *Authenticator
	orders    *fakeOrders
	checkout  *fakeCheckout
	coupons   *fakeCoupons
	validator *fakeValidator
}

func newTestEnv() *testEnv {
	env := &testEnv{
		authn:     NewAuthenticator([]byte("test-secret")),
		orders:    &fakeOrders{},
		checkout:  &fakeCheckout{},
		coupons:   &fakeCoupons{},
		validator: &fakeValidator{},
	}
	r := chi.NewRouter()
	NewHandler(env.orders, env.checkout, env.coupons, env.validator).Routes(r, env.authn)
	env.router = r
	return env
}

func (env *testEnv) token(t *testing.T, id uuid.UUID, role auth.Role) string {
	t.Helper()
	tok, err := env.authn.IssueToken(auth.Principal{UserID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func testOrder() *order.Order {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:                orderID,
		CustomerID:        customerID,
		RestaurantID:      restaurantID,
		DeliveryAddressID: uuid.MustParse("00000000-0000-0000-0000-000000000301"),
		Items: []order.Item{
			{ProductID: productID, Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
		},
		Subtotal:    decimal.RequireFromString("25.00"),
		DeliveryFee: decimal.RequireFromString("8.50"),
		Discount:    decimal.RequireFromString("5.00"),
		Total:       decimal.RequireFromString("28.50"),
		CouponCode:  "SAVE5",
		Status:      order.StatusAwaitingRestaurant,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testCoupon() *coupon.Coupon {
	return &coupon.Coupon{
		ID:          uuid.MustParse("00000000-0000-0000-0000-000000000701"),
		Code:        "SAVE5",
		Description: "Five off",
		Rule:        coupon.Fixed{Value: decimal.NewFromInt(5)},
		ValidUntil:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:      true,
		Uses:        3,
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	fields := map[string]string{}
	err := jx.DecodeBytes(rec.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		fields[key] = strings.Trim(raw.String(), `"`)
		return nil
	})
	require.NoError(t, err, rec.Body.String())
	return fields
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	env := newTestEnv()
	expired, err := env.authn.IssueToken(auth.Principal{UserID: customerID, Role: auth.RoleCustomer}, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthenticator([]byte("other")).IssueToken(auth.Principal{UserID: customerID, Role: auth.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/orders/mine", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeResponse(t, rec)["message"])
		})
	}
}

func TestPublicCouponRoutes(t *testing.T) {
	env := newTestEnv()
	env.coupons.coupon = testCoupon()
	env.coupons.coupons = []coupon.Coupon{*testCoupon()}

	rec := env.do(t, http.MethodGet, "/api/coupons", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"SAVE5"`)

	rec = env.do(t, http.MethodGet, "/api/coupons/code/SAVE5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	assert.Equal(t, "FIXED", body["kind"])
	assert.Equal(t, "5.00", body["value"])
	assert.Equal(t, "3", body["uses"])

	rec = env.do(t, http.MethodGet, "/api/coupons?restaurantId=nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleChecks(t *testing.T) {
	env := newTestEnv()
	env.orders.order = testOrder()
	env.coupons.coupon = testCoupon()

	tests := []struct {
		name   string
		method string
		path   string
		role   auth.Role
		body   string
	}{
		{"owner cannot order", http.MethodPost, "/api/orders", auth.RoleRestaurantOwner, `{}`},
		{"customer cannot list restaurant orders", http.MethodGet, "/api/restaurants/" + restaurantID.String() + "/orders", auth.RoleCustomer, ""},
		{"customer cannot transition", http.MethodPatch, "/api/restaurants/" + restaurantID.String() + "/orders/" + orderID.String() + "/status", auth.RoleCustomer, `{"status":"CONFIRMED"}`},
		{"customer cannot create coupons", http.MethodPost, "/api/coupons", auth.RoleCustomer, `{}`},
		{"owner cannot see top coupons", http.MethodGet, "/api/coupons/top", auth.RoleRestaurantOwner, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, env.token(t, uuid.New(), tt.role), tt.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv()
	env.checkout.res = &checkout.Result{Order: testOrder()}

	body := `{
		"restaurantId": "` + restaurantID.String() + `",
		"deliveryAddressId": "00000000-0000-0000-0000-000000000301",
		"couponCode": "save5",
		"items": [{"productId": "` + productID.String() + `", "quantity": 2, "note": "no onions"}]
	}`
	rec := env.do(t, http.MethodPost, "/api/orders", env.token(t, customerID, auth.RoleCustomer), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := env.checkout.req
	assert.Equal(t, customerID, req.CustomerID)
	assert.Equal(t, restaurantID, req.RestaurantID)
	assert.Equal(t, "save5", req.CouponCode)
	require.Len(t, req.Items, 1)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.Equal(t, "no onions", req.Items[0].Note)

	resp := decodeResponse(t, rec)
	assert.Equal(t, orderID.String(), resp["id"])
	assert.Equal(t, "AWAITING_RESTAURANT", resp["status"])
	assert.Equal(t, "25.00", resp["subtotal"])
	assert.Equal(t, "8.50", resp["deliveryFee"])
	assert.Equal(t, "5.00", resp["discount"])
	assert.Equal(t, "28.50", resp["total"])
	assert.Equal(t, "SAVE5", resp["couponCode"])
	assert.NotContains(t, resp, "confirmedAt")
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"items":`, wantStatus: http.StatusBadRequest},
		{name: "bad uuid", body: `{"restaurantId":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "empty items", body: `{}`, err: order.ErrEmptyItems, wantStatus: http.StatusBadRequest},
		{name: "foreign address", body: `{}`, err: order.ErrAddressNotOwned, wantStatus: http.StatusForbidden},
		{name: "closed restaurant", body: `{}`, err: order.ErrRestaurantUnavailable, wantStatus: http.StatusUnprocessableEntity},
		{name: "unavailable product", body: `{}`, err: &order.ProductUnavailableError{ProductID: productID}, wantStatus: http.StatusUnprocessableEntity},
		{
			name:       "coupon rejected",
			body:       `{}`,
			err:        &coupon.InvalidError{Reason: coupon.ReasonExpired, Message: "coupon expired"},
			wantStatus: http.StatusConflict,
			wantReason: "COUPON_EXPIRED",
		},
		{name: "quote changed", body: `{}`, err: checkout.ErrQuoteChanged, wantStatus: http.StatusConflict},
		{
			name:       "quantity above cap",
			body:       `{}`,
			err:        errors.Wrap(&pricing.InvalidQuantityError{ProductID: productID, Quantity: 1000}, "calculate pricing"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "amount too large",
			body:       `{}`,
			err:        errors.Wrap(&pricing.AmountTooLargeError{Field: "total", Amount: pricing.MaxAmount}, "calculate pricing"),
			wantStatus: http.StatusBadRequest,
		},
		{name: "unexpected", body: `{}`, err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.checkout.err = tt.err
			rec := env.do(t, http.MethodPost, "/api/orders", env.token(t, customerID, auth.RoleCustomer), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, decodeResponse(t, rec)["reason"])
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", decodeResponse(t, rec)["message"])
			}
		})
	}
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv()
	o := testOrder()
	confirmed := o.CreatedAt.Add(time.Minute)
	o.Status = order.StatusConfirmed
	o.ConfirmedAt = &confirmed
	env.orders.order = o

	rec := env.do(t, http.MethodGet, "/api/orders/"+orderID.String(), env.token(t, adminID, auth.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Principal{UserID: adminID, Role: auth.RoleAdmin}, env.orders.viewer)
	assert.Equal(t, "2026-03-01T12:01:00Z", decodeResponse(t, rec)["confirmedAt"])

	rec = env.do(t, http.MethodGet, "/api/orders/not-a-uuid", env.token(t, adminID, auth.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.orders.err = order.ErrNotFound
	rec = env.do(t, http.MethodGet, "/api/orders/"+orderID.String(), env.token(t, adminID, auth.RoleAdmin), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.orders.err = order.ErrNotOwner
	rec = env.do(t, http.MethodGet, "/api/orders/"+orderID.String(), env.token(t, customerID, auth.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListRestaurantOrders(t *testing.T) {
	env := newTestEnv()
	env.orders.orders = []order.Order{*testOrder(), *testOrder()}
	path := "/api/restaurants/" + restaurantID.String() + "/orders"
	tok := env.token(t, ownerID, auth.RoleRestaurantOwner)

	rec := env.do(t, http.MethodGet, path, tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.orders.status)

	rec = env.do(t, http.MethodGet, path+"?status=PREPARING", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.orders.status)
	assert.Equal(t, order.StatusPreparing, *env.orders.status)

	rec = env.do(t, http.MethodGet, path+"?status=LOST", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionOrder(t *testing.T) {
	env := newTestEnv()
	env.orders.order = testOrder()
	path := "/api/restaurants/" + restaurantID.String() + "/orders/" + orderID.String() + "/status"
	tok := env.token(t, ownerID, auth.RoleRestaurantOwner)

	rec := env.do(t, http.MethodPatch, path, tok, `{"status":"CONFIRMED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.TransitionRequest{
		OrderID:      orderID,
		RestaurantID: restaurantID,
		Actor:        auth.Principal{UserID: ownerID, Role: auth.RoleRestaurantOwner},
		Status:       order.StatusConfirmed,
	}, env.orders.lastReq)

	rec = env.do(t, http.MethodPatch, path, tok, `{"status":"SHIPPED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.orders.err = &order.IllegalTransitionError{From: order.StatusDelivered, To: order.StatusConfirmed}
	rec = env.do(t, http.MethodPatch, path, tok, `{"status":"CONFIRMED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv()
	env.orders.err = order.ErrCannotCancelAfterConfirmation

	rec := env.do(t, http.MethodPatch, "/api/orders/"+orderID.String()+"/cancel", env.token(t, customerID, auth.RoleCustomer), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidateCoupon(t *testing.T) {
	env := newTestEnv()
	env.validator.res = &coupon.Result{Reason: coupon.ReasonBelowMinimum, Message: "minimum not reached", Discount: decimal.Zero}
	tok := env.token(t, customerID, auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/coupons/validate", tok,
		`{"code":"SAVE5","subtotal":"19.90","restaurantId":"`+restaurantID.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, customerID, env.validator.req.UserID)
	assert.Equal(t, restaurantID, env.validator.req.RestaurantID)
	assert.True(t, decimal.RequireFromString("19.90").Equal(env.validator.req.Subtotal))

	resp := decodeResponse(t, rec)
	assert.Equal(t, "false", resp["valid"])
	assert.Equal(t, "BELOW_MINIMUM", resp["reason"])
	assert.Equal(t, "0.00", resp["discount"])
	assert.NotContains(t, resp, "couponId")

	rec = env.do(t, http.MethodPost, "/api/coupons/validate", tok, `{"code":"SAVE5","subtotal":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCoupon(t *testing.T) {
	env := newTestEnv()
	env.coupons.coupon = testCoupon()
	tok := env.token(t, adminID, auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/coupons", tok,
		`{"code":"SAVE5","kind":"FIXED","value":5,"validUntil":"2027-01-01T00:00:00Z","maxUses":null}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, coupon.KindFixed, env.coupons.created.Kind)
	assert.Nil(t, env.coupons.created.MaxUses)

	env.coupons.err = coupon.ErrCodeTaken
	rec = env.do(t, http.MethodPost, "/api/coupons", tok, `{"code":"SAVE5"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.coupons.err = &coupon.RuleError{Field: "value", Reason: "must be positive"}
	rec = env.do(t, http.MethodPost, "/api/coupons", tok, `{"code":"SAVE5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMostUsedCoupons(t *testing.T) {
	env := newTestEnv()
	tok := env.token(t, adminID, auth.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/coupons/top?limit=3", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, env.coupons.limit)
	assert.Equal(t, "[]", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/coupons/top?limit=0", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCoupon_NullableLimits(t *testing.T) {
	env := newTestEnv()
	env.coupons.coupon = testCoupon()
	tok := env.token(t, adminID, auth.RoleAdmin)
	path := "/api/coupons/" + testCoupon().ID.String()

	rec := env.do(t, http.MethodPatch, path, tok, `{"maxUses":null,"minSubtotal":"15.00","description":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	req := env.coupons.updated
	assert.True(t, req.MaxUses.Set)
	assert.Nil(t, req.MaxUses.Value)
	assert.True(t, req.MinSubtotal.Set)
	require.NotNil(t, req.MinSubtotal.Value)
	assert.True(t, decimal.NewFromInt(15).Equal(*req.MinSubtotal.Value))
	assert.False(t, req.MaxUsesPerUser.Set)
	assert.False(t, req.MaxDiscount.Set)

	rec = env.do(t, http.MethodPatch, path, tok, `{"maxUsesPerUser":"two"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListManagedCoupons(t *testing.T) {
	env := newTestEnv()
	inactive := *testCoupon()
	inactive.Active = false
	env.coupons.coupons = []coupon.Coupon{inactive}
	tok := env.token(t, ownerID, auth.RoleRestaurantOwner)

	rec := env.do(t, http.MethodGet, "/api/coupons/manage?restaurantId="+restaurantID.String()+"&active=false", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"active":false`)
	require.NotNil(t, env.coupons.listed.restaurantID)
	assert.Equal(t, restaurantID, *env.coupons.listed.restaurantID)
	require.NotNil(t, env.coupons.listed.active)
	assert.False(t, *env.coupons.listed.active)

	rec = env.do(t, http.MethodGet, "/api/coupons/manage", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.coupons.listed.restaurantID)
	assert.Nil(t, env.coupons.listed.active)

	for _, q := range []string{"?active=maybe", "?restaurantId=nope"} {
		rec = env.do(t, http.MethodGet, "/api/coupons/manage"+q, tok, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = env.do(t, http.MethodGet, "/api/coupons/manage", env.token(t, customerID, auth.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.coupons.err = coupon.ErrNotOwner
	rec = env.do(t, http.MethodGet, "/api/coupons/manage?restaurantId="+restaurantID.String(), tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetCoupon(t *testing.T) {
	env := newTestEnv()
	c := testCoupon()
	env.coupons.details = &coupon.Details{
		Coupon: *c,
		RecentUsages: []coupon.Usage{{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000801"),
			CouponID:  c.ID,
			UserID:    customerID,
			OrderID:   orderID,
			Discount:  decimal.NewFromInt(5),
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
	}
	tok := env.token(t, ownerID, auth.RoleRestaurantOwner)

	rec := env.do(t, http.MethodGet, "/api/coupons/"+c.ID.String(), tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `"code":"SAVE5"`)
	assert.Contains(t, body, `"recentUsages":[{`)
	assert.Contains(t, body, `"orderId":"`+orderID.String()+`"`)
	assert.Contains(t, body, `"discount":5.00`)

	rec = env.do(t, http.MethodGet, "/api/coupons/not-a-uuid", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.coupons.err = coupon.ErrNotOwner
	rec = env.do(t, http.MethodGet, "/api/coupons/"+c.ID.String(), tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.coupons.err = coupon.ErrNotFound
	rec = env.do(t, http.MethodGet, "/api/coupons/"+c.ID.String(), tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
