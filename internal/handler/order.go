package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/delivery-api/internal/domain/checkout"
	"github.com/xenking/delivery-api/internal/domain/order"
)

// CreateOrder places an order for the calling customer, optionally with a
// coupon.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}
	body, err := decodeCreateOrder(d)
	if err != nil {
		badRequest(w, err)
		return
	}
	body.CustomerID = principal(r).UserID

	res, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		CreateRequest: body.CreateRequest,
		CouponCode:    body.CouponCode,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, res.Order) })
}

// GetOrder returns one order visible to the caller.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		badRequest(w, fieldError("orderID", err))
		return
	}
	o, err := h.orders.Get(r.Context(), id, principal(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListMyOrders returns the caller's orders.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByCustomer(r.Context(), principal(r).UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// ListRestaurantOrders returns a restaurant's orders, filtered by the
// optional status query parameter.
func (h *Handler) ListRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathUUID(r, "restaurantID")
	if err != nil {
		badRequest(w, fieldError("restaurantID", err))
		return
	}

	var status *order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := order.ParseStatus(raw)
		if err != nil {
			badRequest(w, err)
			return
		}
		status = &s
	}

	orders, err := h.orders.ListByRestaurant(r.Context(), restaurantID, principal(r), status)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// TransitionOrder moves an order to the requested status.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := pathUUID(r, "restaurantID")
	if err != nil {
		badRequest(w, fieldError("restaurantID", err))
		return
	}
	orderID, err := pathUUID(r, "orderID")
	if err != nil {
		badRequest(w, fieldError("orderID", err))
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}
	status, err := decodeStatusChange(d)
	if err != nil {
		badRequest(w, err)
		return
	}

	o, err := h.orders.Transition(r.Context(), order.TransitionRequest{
		OrderID:      orderID,
		RestaurantID: restaurantID,
		Actor:        principal(r),
		Status:       status,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// CancelOrder cancels the caller's order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "orderID")
	if err != nil {
		badRequest(w, fieldError("orderID", err))
		return
	}
	o, err := h.orders.Cancel(r.Context(), id, principal(r).UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
