package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrRestaurantNotFound is returned when a requested restaurant does not exist.
var ErrRestaurantNotFound = errors.New("restaurant not found")

// Restaurant is the subset of restaurant data the order flow depends on.
type Restaurant struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Name        string
	Active      bool
	DeliveryFee decimal.Decimal
}

// Product is a catalog item with its current price.
type Product struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Price        decimal.Decimal
	Available    bool
}

// Provider defines read operations on the catalog.
type Provider interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (*Restaurant, error)
	// GetProducts returns the products matching ids. Unknown ids are
	// omitted rather than reported as errors.
	GetProducts(ctx context.Context, ids []uuid.UUID) ([]Product, error)
}
