package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/pricing"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems                    = errors.New("items required")
	ErrMissingField                  = errors.New("missing required field")
	ErrNotFound                      = errors.New("order not found")
	ErrNotOwner                      = errors.New("caller does not own the order")
	ErrRestaurantUnavailable         = errors.New("restaurant unavailable")
	ErrAddressNotOwned               = errors.New("delivery address does not belong to customer")
	ErrCannotCancelAfterConfirmation = errors.New("order can only be cancelled before the restaurant confirms it")
)

// ProductUnavailableError indicates a product that is missing, belongs to a
// different restaurant, or is not currently available.
type ProductUnavailableError struct {
	ProductID uuid.UUID
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// IllegalTransitionError indicates a status change outside the lifecycle graph.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

// Item is an immutable order line with its price snapshot.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Note      string
}

// Total returns UnitPrice * Quantity.
func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a customer purchase from one restaurant.
type Order struct {
	ID                uuid.UUID
	CustomerID        uuid.UUID
	RestaurantID      uuid.UUID
	DeliveryAddressID uuid.UUID
	Items             []Item
	Subtotal          decimal.Decimal
	DeliveryFee       decimal.Decimal
	Discount          decimal.Decimal
	Total             decimal.Decimal
	CouponCode        string
	Note              string
	Status            Status
	Milestones
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Breakdown returns the order's pricing summary.
func (o *Order) Breakdown() pricing.Breakdown {
	return pricing.Breakdown{
		Subtotal:    o.Subtotal,
		DeliveryFee: o.DeliveryFee,
		Discount:    o.Discount,
		Total:       o.Total,
	}
}

func (o *Order) setBreakdown(b pricing.Breakdown) {
	o.Subtotal = b.Subtotal
	o.DeliveryFee = b.DeliveryFee
	o.Discount = b.Discount
	o.Total = b.Total
}

// ApplyDiscount records a coupon discount on an order that has not been
// placed yet. The discount is clamped to the subtotal.
func (o *Order) ApplyDiscount(code string, amount decimal.Decimal) {
	o.setBreakdown(o.Breakdown().WithDiscount(amount))
	o.CouponCode = code
}

func (o *Order) advance(to Status, at time.Time) {
	o.Status = to
	o.stamp(to, at)
	o.UpdatedAt = at
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items atomically.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, status *Status) ([]Order, error)
	// Update loads the order under a row lock, calls fn and persists the
	// status and milestones if fn succeeds.
	Update(ctx context.Context, id uuid.UUID, fn func(o *Order) error) (*Order, error)
}

// EventType names an order event.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event describes a committed order change.
type Event struct {
	Type  EventType
	Order *Order
	// From is the previous status for EventStatusChanged.
	From Status
	At   time.Time
}

// EventPublisher delivers order events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
