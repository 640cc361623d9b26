// Package handler exposes the order and coupon services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xenking/delivery-api/internal/domain/auth"
	"github.com/xenking/delivery-api/internal/domain/checkout"
	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
)

// Orders is the order lifecycle API.
type Orders interface {
	Get(ctx context.Context, id uuid.UUID, viewer auth.Principal) (*order.Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, viewer auth.Principal, status *order.Status) ([]order.Order, error)
	Transition(ctx context.Context, req order.TransitionRequest) (*order.Order, error)
	Cancel(ctx context.Context, orderID, customerID uuid.UUID) (*order.Order, error)
}

// Checkout places orders.
type Checkout interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// Coupons is the coupon management API.
type Coupons interface {
	Create(ctx context.Context, actor auth.Principal, req coupon.CreateRequest) (*coupon.Coupon, error)
	Update(ctx context.Context, actor auth.Principal, id uuid.UUID, req coupon.UpdateRequest) (*coupon.Coupon, error)
	Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*coupon.Details, error)
	GetByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	List(ctx context.Context, actor auth.Principal, restaurantID *uuid.UUID, active *bool) ([]coupon.Coupon, error)
	ListActive(ctx context.Context, restaurantID *uuid.UUID) ([]coupon.Coupon, error)
	MostUsed(ctx context.Context, limit int) ([]coupon.Coupon, error)
	History(ctx context.Context, userID uuid.UUID) ([]coupon.HistoryEntry, error)
}

// CouponValidator checks coupon eligibility without side effects.
type CouponValidator interface {
	Validate(ctx context.Context, req coupon.Request) (*coupon.Result, error)
}

// Handler serves the /api routes.
type Handler struct {
	orders    Orders
	checkout  Checkout
	coupons   Coupons
	validator CouponValidator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders Orders, co Checkout, coupons Coupons, validator CouponValidator) *Handler {
	return &Handler{
		orders:    orders,
		checkout:  co,
		coupons:   coupons,
		validator: validator,
	}
}

// Routes mounts the API on r. Everything except public coupon reads
// requires a bearer token.
func (h *Handler) Routes(r chi.Router, authn *Authenticator) {
	managers := RequireRole(auth.RoleRestaurantOwner, auth.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Get("/coupons", h.ListActiveCoupons)
		r.Get("/coupons/code/{code}", h.GetCouponByCode)

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)

			r.Route("/orders", func(r chi.Router) {
				r.With(RequireRole(auth.RoleCustomer)).Post("/", h.CreateOrder)
				r.Get("/mine", h.ListMyOrders)
				r.Get("/{orderID}", h.GetOrder)
				r.Patch("/{orderID}/cancel", h.CancelOrder)
			})

			r.Route("/restaurants/{restaurantID}/orders", func(r chi.Router) {
				r.Use(managers)
				r.Get("/", h.ListRestaurantOrders)
				r.Patch("/{orderID}/status", h.TransitionOrder)
			})

			r.Post("/coupons/validate", h.ValidateCoupon)
			r.Get("/coupons/history", h.CouponHistory)
			r.With(RequireRole(auth.RoleAdmin)).Get("/coupons/top", h.MostUsedCoupons)
			r.With(managers).Get("/coupons/manage", h.ListManagedCoupons)
			r.With(managers).Post("/coupons", h.CreateCoupon)
			r.With(managers).Get("/coupons/{couponID}", h.GetCoupon)
			r.With(managers).Patch("/coupons/{couponID}", h.UpdateCoupon)
		})
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
