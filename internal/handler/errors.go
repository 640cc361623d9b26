package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/checkout"
	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
	"github.com/xenking/delivery-api/internal/domain/pricing"
)

// errorStatus maps a domain error to its HTTP status. Zero means the error
// is unexpected.
func errorStatus(err error) int {
	var (
		quantityErr   *pricing.InvalidQuantityError
		amountErr     *pricing.AmountTooLargeError
		ruleErr       *coupon.RuleError
		unavailErr    *order.ProductUnavailableError
		transitionErr *order.IllegalTransitionError
		invalidErr    *coupon.InvalidError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrMissingField),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, pricing.ErrNoLines),
		errors.As(err, &quantityErr),
		errors.As(err, &amountErr),
		errors.As(err, &ruleErr):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotOwner),
		errors.Is(err, order.ErrAddressNotOwned),
		errors.Is(err, coupon.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transitionErr),
		errors.Is(err, order.ErrCannotCancelAfterConfirmation),
		errors.As(err, &invalidErr),
		errors.Is(err, coupon.ErrAlreadyApplied),
		errors.Is(err, coupon.ErrCodeTaken),
		errors.Is(err, checkout.ErrQuoteChanged):
		return http.StatusConflict
	case errors.Is(err, order.ErrRestaurantUnavailable),
		errors.As(err, &unavailErr):
		return http.StatusUnprocessableEntity
	default:
		return 0
	}
}

// handleError writes the response for err. Unexpected errors are logged and
// hidden behind a generic message.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidErr *coupon.InvalidError
	if errors.As(err, &invalidErr) {
		writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusConflict)
			e.FieldStart("message")
			e.Str(invalidErr.Message)
			e.FieldStart("reason")
			e.Str(string(invalidErr.Reason))
			e.ObjEnd()
		})
		return
	}
	if status := errorStatus(err); status != 0 {
		writeError(w, status, err.Error())
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}
