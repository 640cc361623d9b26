package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/auth"
	"github.com/xenking/delivery-api/internal/domain/catalog"
	"github.com/xenking/delivery-api/internal/domain/pricing"
)

// ItemRequest is one requested cart line.
type ItemRequest struct {
	ProductID uuid.UUID
	Quantity  int
	Note      string
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	CustomerID        uuid.UUID
	RestaurantID      uuid.UUID
	DeliveryAddressID uuid.UUID
	Items             []ItemRequest
	Note              string
}

// TransitionRequest asks to move an order of RestaurantID to Status on
// behalf of Actor.
type TransitionRequest struct {
	OrderID      uuid.UUID
	RestaurantID uuid.UUID
	Actor        auth.Principal
	Status       Status
}

// Service encapsulates order creation and lifecycle logic.
type Service struct {
	catalog catalog.Provider
	owners  auth.Ownership
	orders  Repository
	events  EventPublisher
	now     func() time.Time

	transitions metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cat catalog.Provider,
	owners auth.Ownership,
	orders Repository,
	events EventPublisher,
	mp metric.MeterProvider,
) (*Service, error) {
	transitions, err := mp.Meter("delivery/order").Int64Counter("delivery.orders.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}
	return &Service{
		catalog:     cat,
		owners:      owners,
		orders:      orders,
		events:      events,
		now:         time.Now,
		transitions: transitions,
	}, nil
}

// Quote validates the request against the catalog and ownership data and
// returns an unpersisted order priced from live product prices.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, catalog.ErrRestaurantNotFound) {
			return nil, ErrRestaurantUnavailable
		}
		return nil, errors.Wrap(err, "get restaurant")
	}
	if !restaurant.Active {
		return nil, ErrRestaurantUnavailable
	}

	owned, err := s.owners.AddressBelongsTo(ctx, req.DeliveryAddressID, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "check address ownership")
	}
	if !owned {
		return nil, ErrAddressNotOwned
	}

	ids := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	products := make(map[uuid.UUID]catalog.Product, len(fetched))
	for _, p := range fetched {
		products[p.ID] = p
	}

	items := make([]Item, len(req.Items))
	lines := make([]pricing.Line, len(req.Items))
	for i, item := range req.Items {
		p, ok := products[item.ProductID]
		if !ok || p.RestaurantID != restaurant.ID || !p.Available {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		items[i] = Item{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			Note:      item.Note,
		}
		lines[i] = pricing.Line{ProductID: p.ID, Quantity: item.Quantity, UnitPrice: p.Price}
	}

	breakdown, err := pricing.Calculate(lines, restaurant.DeliveryFee)
	if err != nil {
		return nil, errors.Wrap(err, "calculate pricing")
	}

	o := &Order{
		ID:                uuid.New(),
		CustomerID:        req.CustomerID,
		RestaurantID:      restaurant.ID,
		DeliveryAddressID: req.DeliveryAddressID,
		Items:             items,
		Note:              req.Note,
		Status:            StatusAwaitingRestaurant,
	}
	o.setBreakdown(breakdown)
	return o, nil
}

// Place persists a quoted order in its initial status.
func (s *Service) Place(ctx context.Context, o *Order) error {
	now := s.now()
	o.Status = StatusAwaitingRestaurant
	o.Milestones = Milestones{}
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := s.orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order placed",
		zap.Stringer("order_id", o.ID),
		zap.Stringer("restaurant_id", o.RestaurantID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return nil
}

// Create quotes and places an order without a coupon.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	o, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.Place(ctx, o); err != nil {
		return nil, err
	}
	s.Publish(ctx, Event{Type: EventCreated, Order: o, At: o.CreatedAt})
	return o, nil
}

// Get returns the order if viewer may see it: customers see their own
// orders, restaurant owners see their restaurants' orders, admins see all.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer auth.Principal) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	switch {
	case viewer.IsAdmin(), o.CustomerID == viewer.UserID:
		return o, nil
	case viewer.Role == auth.RoleRestaurantOwner:
		owns, err := s.owners.RestaurantBelongsTo(ctx, o.RestaurantID, viewer.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "check restaurant ownership")
		}
		if owns {
			return o, nil
		}
	}
	return nil, ErrNotOwner
}

// ListByCustomer returns the customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list customer orders")
	}
	return orders, nil
}

// ListByRestaurant returns the restaurant's orders, newest first, optionally
// filtered by status.
func (s *Service) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, viewer auth.Principal, status *Status) ([]Order, error) {
	if err := s.checkRestaurant(ctx, restaurantID, viewer); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByRestaurant(ctx, restaurantID, status)
	if err != nil {
		return nil, errors.Wrap(err, "list restaurant orders")
	}
	return orders, nil
}

// Transition moves an order along the lifecycle graph and stamps the
// matching milestone.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	if !req.Status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", req.Status)
	}
	if err := s.checkRestaurant(ctx, req.RestaurantID, req.Actor); err != nil {
		return nil, err
	}

	var from Status
	o, err := s.orders.Update(ctx, req.OrderID, func(o *Order) error {
		if o.RestaurantID != req.RestaurantID {
			return ErrNotOwner
		}
		if !CanTransition(o.Status, req.Status) {
			return &IllegalTransitionError{From: o.Status, To: req.Status}
		}
		from = o.Status
		o.advance(req.Status, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(o.Status))))
	zctx.From(ctx).Info("Order status changed",
		zap.Stringer("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
	)
	s.Publish(ctx, Event{Type: EventStatusChanged, Order: o, From: from, At: o.UpdatedAt})
	return o, nil
}

// Cancel cancels the customer's order while the restaurant has not acted on it.
func (s *Service) Cancel(ctx context.Context, orderID, customerID uuid.UUID) (*Order, error) {
	var from Status
	o, err := s.orders.Update(ctx, orderID, func(o *Order) error {
		if o.CustomerID != customerID {
			return ErrNotOwner
		}
		if o.Status != StatusAwaitingRestaurant {
			return ErrCannotCancelAfterConfirmation
		}
		from = o.Status
		o.advance(StatusCancelled, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(o.Status))))
	zctx.From(ctx).Info("Order cancelled by customer", zap.Stringer("order_id", o.ID))
	s.Publish(ctx, Event{Type: EventStatusChanged, Order: o, From: from, At: o.UpdatedAt})
	return o, nil
}

// Publish delivers e, logging instead of failing: the change is already
// committed when events are published.
func (s *Service) Publish(ctx context.Context, e Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", string(e.Type)),
			zap.Stringer("order_id", e.Order.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) checkRestaurant(ctx context.Context, restaurantID uuid.UUID, actor auth.Principal) error {
	if actor.IsAdmin() {
		return nil
	}
	owns, err := s.owners.RestaurantBelongsTo(ctx, restaurantID, actor.UserID)
	if err != nil {
		return errors.Wrap(err, "check restaurant ownership")
	}
	if !owns {
		return ErrNotOwner
	}
	return nil
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.CustomerID == uuid.Nil:
		return errors.Wrap(ErrMissingField, "customer")
	case req.RestaurantID == uuid.Nil:
		return errors.Wrap(ErrMissingField, "restaurantId")
	case req.DeliveryAddressID == uuid.Nil:
		return errors.Wrap(ErrMissingField, "deliveryAddressId")
	case len(req.Items) == 0:
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.ProductID == uuid.Nil {
			return errors.Wrap(ErrMissingField, "productId")
		}
		if !pricing.ValidQuantity(item.Quantity) {
			return &pricing.InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}
	return nil
}
