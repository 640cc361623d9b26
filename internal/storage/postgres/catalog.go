package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-api/internal/domain/auth"
	"github.com/xenking/delivery-api/internal/domain/catalog"
)

const (
	getRestaurantSQL = `SELECT id, owner_id, name, active, delivery_fee
		FROM restaurants WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, restaurant_id, name, price, available
		FROM products WHERE id = ANY($1)`

	restaurantOwnedSQL = `SELECT EXISTS (SELECT 1 FROM restaurants WHERE id = $1 AND owner_id = $2)`
	addressOwnedSQL    = `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, owner_id, name, active, delivery_fee)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name,
			active = EXCLUDED.active, delivery_fee = EXCLUDED.delivery_fee`

	upsertProductSQL = `INSERT INTO products (id, restaurant_id, name, price, available)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET restaurant_id = EXCLUDED.restaurant_id, name = EXCLUDED.name,
			price = EXCLUDED.price, available = EXCLUDED.available`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, street, number, city, zip_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, street = EXCLUDED.street,
			number = EXCLUDED.number, city = EXCLUDED.city, zip_code = EXCLUDED.zip_code`
)

var (
	_ catalog.Provider = (*CatalogRepository)(nil)
	_ auth.Ownership   = (*CatalogRepository)(nil)
)

// Address is a customer's delivery address.
type Address struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Street  string
	Number  string
	City    string
	ZipCode string
}

// CatalogRepository reads restaurants and products and answers ownership
// questions from the same tables.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetRestaurant returns a restaurant by id.
func (r *CatalogRepository) GetRestaurant(ctx context.Context, id uuid.UUID) (*catalog.Restaurant, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, getRestaurantSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get restaurant %s", id)
	}
	rest, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (catalog.Restaurant, error) {
		var rest catalog.Restaurant
		err := row.Scan(&rest.ID, &rest.OwnerID, &rest.Name, &rest.Active, &rest.DeliveryFee)
		return rest, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrRestaurantNotFound
		}
		return nil, errors.Wrapf(err, "get restaurant %s", id)
	}
	return &rest, nil
}

// GetProducts returns the products matching ids.
func (r *CatalogRepository) GetProducts(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(&p.ID, &p.RestaurantID, &p.Name, &p.Price, &p.Available)
		return p, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return products, nil
}

// RestaurantBelongsTo reports whether userID owns the restaurant.
func (r *CatalogRepository) RestaurantBelongsTo(ctx context.Context, restaurantID, userID uuid.UUID) (bool, error) {
	return r.exists(ctx, restaurantOwnedSQL, restaurantID, userID)
}

// AddressBelongsTo reports whether the address is registered to userID.
func (r *CatalogRepository) AddressBelongsTo(ctx context.Context, addressID, userID uuid.UUID) (bool, error) {
	return r.exists(ctx, addressOwnedSQL, addressID, userID)
}

func (r *CatalogRepository) exists(ctx context.Context, sql string, id, userID uuid.UUID) (bool, error) {
	var ok bool
	if err := querier(ctx, r.pool).QueryRow(ctx, sql, id, userID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "check ownership")
	}
	return ok, nil
}

// UpsertRestaurant creates or replaces a restaurant.
func (r *CatalogRepository) UpsertRestaurant(ctx context.Context, rest catalog.Restaurant) error {
	_, err := querier(ctx, r.pool).Exec(ctx, upsertRestaurantSQL,
		rest.ID, rest.OwnerID, rest.Name, rest.Active, rest.DeliveryFee,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert restaurant %s", rest.ID)
	}
	return nil
}

// UpsertProduct creates or replaces a product.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := querier(ctx, r.pool).Exec(ctx, upsertProductSQL,
		p.ID, p.RestaurantID, p.Name, p.Price, p.Available,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert product %s", p.ID)
	}
	return nil
}

// UpsertAddress creates or replaces a delivery address.
func (r *CatalogRepository) UpsertAddress(ctx context.Context, a Address) error {
	_, err := querier(ctx, r.pool).Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Street, a.Number, a.City, a.ZipCode,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert address %s", a.ID)
	}
	return nil
}
