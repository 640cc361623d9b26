package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/delivery-api/internal/domain/coupon"
)

// ValidateCoupon reports whether a coupon would apply to a cart subtotal.
// Ineligible coupons are a 200 with valid=false.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}
	body, err := decodeValidate(d)
	if err != nil {
		badRequest(w, err)
		return
	}
	if body.Subtotal.IsNegative() {
		badRequest(w, errors.New("invalid subtotal: must not be negative"))
		return
	}

	res, err := h.validator.Validate(r.Context(), coupon.Request{
		Code:         body.Code,
		UserID:       principal(r).UserID,
		Subtotal:     body.Subtotal,
		RestaurantID: body.RestaurantID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeValidation(e, res) })
}

// CouponHistory lists the caller's coupon usages.
func (h *Handler) CouponHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.coupons.History(r.Context(), principal(r).UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeHistory(e, entries) })
}

func queryRestaurantID(r *http.Request) (*uuid.UUID, error) {
	raw := r.URL.Query().Get("restaurantId")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fieldError("restaurantId", err)
	}
	return &id, nil
}

// ListActiveCoupons lists coupons usable now, optionally for one restaurant.
func (h *Handler) ListActiveCoupons(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryRestaurantID(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	coupons, err := h.coupons.ListActive(r.Context(), restaurantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupons(e, coupons) })
}

// ListManagedCoupons lists the coupons the caller manages, including
// inactive and expired ones. Supports ?restaurantId= and ?active=.
func (h *Handler) ListManagedCoupons(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryRestaurantID(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	var active *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, fieldError("active", err))
			return
		}
		active = &v
	}

	coupons, err := h.coupons.List(r.Context(), principal(r), restaurantID, active)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupons(e, coupons) })
}

// GetCoupon returns a coupon with its latest usages.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "couponID")
	if err != nil {
		badRequest(w, fieldError("couponID", err))
		return
	}

	details, err := h.coupons.Get(r.Context(), principal(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCouponDetails(e, details) })
}

// GetCouponByCode returns a coupon by its code.
func (h *Handler) GetCouponByCode(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// MostUsedCoupons lists the coupons with the most uses.
func (h *Handler) MostUsedCoupons(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, errors.New("invalid limit: must be a positive integer"))
			return
		}
		limit = n
	}

	coupons, err := h.coupons.MostUsed(r.Context(), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupons(e, coupons) })
}

// CreateCoupon defines a new coupon.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}
	req, err := decodeCouponCreate(d)
	if err != nil {
		badRequest(w, err)
		return
	}

	c, err := h.coupons.Create(r.Context(), principal(r), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// UpdateCoupon changes the supplied fields of a coupon.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "couponID")
	if err != nil {
		badRequest(w, fieldError("couponID", err))
		return
	}
	d, err := readBody(w, r)
	if err != nil {
		badRequest(w, err)
		return
	}
	req, err := decodeCouponUpdate(d)
	if err != nil {
		badRequest(w, err)
		return
	}

	c, err := h.coupons.Update(r.Context(), principal(r), id, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}
