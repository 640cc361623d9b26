package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
)

const maxBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return jx.DecodeBytes(data), nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// --- decoding helpers ---

func decodeUUID(d *jx.Decoder) (uuid.UUID, error) {
	s, err := d.Str()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(s)
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// decodeNullable decodes a value unless it is JSON null.
func decodeNullable[T any](d *jx.Decoder, fn func(*jx.Decoder) (T, error)) (*T, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := fn(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeInt(d *jx.Decoder) (int, error) { return d.Int() }
func decodeBool(d *jx.Decoder) (bool, error) { return d.Bool() }
func decodeStr(d *jx.Decoder) (string, error) { return d.Str() }

func fieldError(field string, err error) error {
	return errors.Wrapf(err, "invalid %s", field)
}

// --- requests ---

type createOrderBody struct {
	order.CreateRequest
	CouponCode string
}

func decodeCreateOrder(d *jx.Decoder) (createOrderBody, error) {
	var b createOrderBody
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "restaurantId":
			b.RestaurantID, err = decodeUUID(d)
		case "deliveryAddressId":
			b.DeliveryAddressID, err = decodeUUID(d)
		case "note":
			b.Note, err = d.Str()
		case "couponCode":
			var code *string
			code, err = decodeNullable(d, decodeStr)
			if code != nil {
				b.CouponCode = *code
			}
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				b.Items = append(b.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return fieldError(key, err)
		}
		return nil
	})
	return b, err
}

func decodeItem(d *jx.Decoder) (order.ItemRequest, error) {
	var item order.ItemRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = decodeUUID(d)
		case "quantity":
			item.Quantity, err = d.Int()
		case "note":
			item.Note, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return fieldError(key, err)
		}
		return nil
	})
	return item, err
}

func decodeStatusChange(d *jx.Decoder) (order.Status, error) {
	var status string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return fieldError(key, err)
		}
		status = s
		return nil
	})
	if err != nil {
		return "", err
	}
	return order.ParseStatus(status)
}

type validateBody struct {
	Code         string
	Subtotal     decimal.Decimal
	RestaurantID uuid.UUID
}

func decodeValidate(d *jx.Decoder) (validateBody, error) {
	var b validateBody
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			b.Code, err = d.Str()
		case "subtotal":
			b.Subtotal, err = decodeDecimal(d)
		case "restaurantId":
			var id *uuid.UUID
			id, err = decodeNullable(d, decodeUUID)
			if id != nil {
				b.RestaurantID = *id
			}
		default:
			return d.Skip()
		}
		if err != nil {
			return fieldError(key, err)
		}
		return nil
	})
	return b, err
}

func decodeCouponCreate(d *jx.Decoder) (coupon.CreateRequest, error) {
	var req coupon.CreateRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "description":
			req.Description, err = d.Str()
		case "kind":
			var s string
			s, err = d.Str()
			req.Kind = coupon.Kind(s)
		case "value":
			req.Value, err = decodeDecimal(d)
		case "maxDiscount":
			req.MaxDiscount, err = decodeNullable(d, decodeDecimal)
		case "minSubtotal":
			req.MinSubtotal, err = decodeNullable(d, decodeDecimal)
		case "validUntil":
			req.ValidUntil, err = decodeTime(d)
		case "maxUses":
			req.MaxUses, err = decodeNullable(d, decodeInt)
		case "maxUsesPerUser":
			req.MaxUsesPerUser, err = decodeNullable(d, decodeInt)
		case "restaurantId":
			req.RestaurantID, err = decodeNullable(d, decodeUUID)
		case "firstOrderOnly":
			req.FirstOrderOnly, err = d.Bool()
		default:
			return d.Skip()
		}
		if err != nil {
			return fieldError(key, err)
		}
		return nil
	})
	return req, err
}

// decodeCouponUpdate treats an absent field as untouched. An explicit null
// clears the nullable limits.
func decodeCouponUpdate(d *jx.Decoder) (coupon.UpdateRequest, error) {
	var req coupon.UpdateRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "description":
			req.Description, err = decodeNullable(d, decodeStr)
		case "value":
			req.Value, err = decodeNullable(d, decodeDecimal)
		case "maxDiscount":
			req.MaxDiscount, err = decodePatch(d, decodeDecimal)
		case "minSubtotal":
			req.MinSubtotal, err = decodePatch(d, decodeDecimal)
		case "validUntil":
			req.ValidUntil, err = decodeNullable(d, decodeTime)
		case "maxUses":
			req.MaxUses, err = decodePatch(d, decodeInt)
		case "maxUsesPerUser":
			req.MaxUsesPerUser, err = decodePatch(d, decodeInt)
		case "firstOrderOnly":
			req.FirstOrderOnly, err = decodeNullable(d, decodeBool)
		case "active":
			req.Active, err = decodeNullable(d, decodeBool)
		default:
			return d.Skip()
		}
		if err != nil {
			return fieldError(key, err)
		}
		return nil
	})
	return req, err
}

func decodePatch[T any](d *jx.Decoder, fn func(*jx.Decoder) (T, error)) (coupon.Nullable[T], error) {
	v, err := decodeNullable(d, fn)
	if err != nil {
		return coupon.Nullable[T]{}, err
	}
	return coupon.Nullable[T]{Set: true, Value: v}, nil
}

// --- responses ---

func money(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID.String())
	e.FieldStart("customerId")
	e.Str(o.CustomerID.String())
	e.FieldStart("restaurantId")
	e.Str(o.RestaurantID.String())
	e.FieldStart("deliveryAddressId")
	e.Str(o.DeliveryAddressID.String())

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(item.ProductID.String())
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		money(e, "unitPrice", item.UnitPrice)
		money(e, "total", item.Total())
		if item.Note != "" {
			e.FieldStart("note")
			e.Str(item.Note)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	money(e, "subtotal", o.Subtotal)
	money(e, "deliveryFee", o.DeliveryFee)
	money(e, "discount", o.Discount)
	money(e, "total", o.Total)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	if o.Note != "" {
		e.FieldStart("note")
		e.Str(o.Note)
	}
	e.FieldStart("status")
	e.Str(string(o.Status))

	timestamp(e, "confirmedAt", o.ConfirmedAt)
	timestamp(e, "preparingAt", o.PreparingAt)
	timestamp(e, "readyAt", o.ReadyAt)
	timestamp(e, "dispatchedAt", o.DispatchedAt)
	timestamp(e, "deliveredAt", o.DeliveredAt)
	timestamp(e, "cancelledAt", o.CancelledAt)
	timestamp(e, "createdAt", &o.CreatedAt)
	timestamp(e, "updatedAt", &o.UpdatedAt)
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	encodeCouponFields(e, c)
	e.ObjEnd()
}

func encodeCouponDetails(e *jx.Encoder, d *coupon.Details) {
	e.ObjStart()
	encodeCouponFields(e, &d.Coupon)
	e.FieldStart("recentUsages")
	e.ArrStart()
	for _, u := range d.RecentUsages {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(u.ID.String())
		e.FieldStart("userId")
		e.Str(u.UserID.String())
		e.FieldStart("orderId")
		e.Str(u.OrderID.String())
		money(e, "discount", u.Discount)
		timestamp(e, "createdAt", &u.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCouponFields(e *jx.Encoder, c *coupon.Coupon) {
	value, maxDiscount := coupon.Value(c.Rule)

	e.FieldStart("id")
	e.Str(c.ID.String())
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("kind")
	e.Str(string(c.Rule.Kind()))
	money(e, "value", value)
	if maxDiscount != nil {
		money(e, "maxDiscount", *maxDiscount)
	}
	if c.MinSubtotal != nil {
		money(e, "minSubtotal", *c.MinSubtotal)
	}
	timestamp(e, "validUntil", &c.ValidUntil)
	if c.MaxUses != nil {
		e.FieldStart("maxUses")
		e.Int(*c.MaxUses)
	}
	if c.MaxUsesPerUser != nil {
		e.FieldStart("maxUsesPerUser")
		e.Int(*c.MaxUsesPerUser)
	}
	if c.RestaurantID != nil {
		e.FieldStart("restaurantId")
		e.Str(c.RestaurantID.String())
	}
	e.FieldStart("firstOrderOnly")
	e.Bool(c.FirstOrderOnly)
	e.FieldStart("active")
	e.Bool(c.Active)
	e.FieldStart("uses")
	e.Int(c.Uses)
	timestamp(e, "createdAt", &c.CreatedAt)
	timestamp(e, "updatedAt", &c.UpdatedAt)
}

func encodeCoupons(e *jx.Encoder, coupons []coupon.Coupon) {
	e.ArrStart()
	for i := range coupons {
		encodeCoupon(e, &coupons[i])
	}
	e.ArrEnd()
}

func encodeValidation(e *jx.Encoder, res *coupon.Result) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(res.Valid)
	if res.Reason != "" {
		e.FieldStart("reason")
		e.Str(string(res.Reason))
	}
	e.FieldStart("message")
	e.Str(res.Message)
	money(e, "discount", res.Discount)
	if res.Valid {
		e.FieldStart("couponId")
		e.Str(res.CouponID.String())
		e.FieldStart("code")
		e.Str(res.Code)
		e.FieldStart("description")
		e.Str(res.Description)
	}
	e.ObjEnd()
}

func encodeHistory(e *jx.Encoder, entries []coupon.HistoryEntry) {
	e.ArrStart()
	for _, h := range entries {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(h.ID.String())
		e.FieldStart("couponId")
		e.Str(h.CouponID.String())
		e.FieldStart("code")
		e.Str(h.CouponCode)
		e.FieldStart("description")
		e.Str(h.Description)
		e.FieldStart("orderId")
		e.Str(h.OrderID.String())
		e.FieldStart("restaurantId")
		e.Str(h.RestaurantID.String())
		e.FieldStart("restaurantName")
		e.Str(h.RestaurantName)
		money(e, "discount", h.Discount)
		timestamp(e, "createdAt", &h.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
}
