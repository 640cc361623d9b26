package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/delivery-api/internal/domain/coupon"
	"github.com/xenking/delivery-api/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, restaurant_id, delivery_address_id,
		subtotal, delivery_fee, discount, total, coupon_code, note, status,
		confirmed_at, preparing_at, ready_at, dispatched_at, delivered_at, cancelled_at,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, quantity, unit_price, note)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, id`

	listOrdersByRestaurantSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE restaurant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id`

	listOrderItemsSQL = `SELECT order_id, product_id, quantity, unit_price, note
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
		confirmed_at = $3, preparing_at = $4, ready_at = $5,
		dispatched_at = $6, delivered_at = $7, cancelled_at = $8,
		updated_at = $9
		WHERE id = $1`

	countPriorOrdersSQL = `SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND id <> $2`
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ coupon.OrderHistory = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
	tx   *Transactor
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, tx: NewTransactor(pool)}
}

// Create inserts the order row and its items in one batch. Items keep
// their position in the order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.tx.InTx(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		batch.Queue(createOrderSQL,
			o.ID, o.CustomerID, o.RestaurantID, o.DeliveryAddressID,
			o.Subtotal, o.DeliveryFee, o.Discount, o.Total, nullable(o.CouponCode), o.Note, string(o.Status),
			o.ConfirmedAt, o.PreparingAt, o.ReadyAt, o.DispatchedAt, o.DeliveredAt, o.CancelledAt,
			o.CreatedAt, o.UpdatedAt,
		)
		for i, item := range o.Items {
			batch.Queue(createOrderItemSQL, o.ID, i, item.ProductID, item.Quantity, item.UnitPrice, item.Note)
		}

		if err := querier(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "create order %s", o.ID)
		}
		return nil
	})
}

// GetByID returns the order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
	return r.list(ctx, listOrdersByCustomerSQL, customerID)
}

// ListByRestaurant returns the restaurant's orders, newest first. A nil
// status matches every status.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, status *order.Status) ([]order.Order, error) {
	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}
	return r.list(ctx, listOrdersByRestaurantSQL, restaurantID, filter)
}

// Update locks the order row, applies fn and writes back the status and
// milestones. Nothing is written when fn fails.
func (r *OrderRepository) Update(ctx context.Context, id uuid.UUID, fn func(o *order.Order) error) (*order.Order, error) {
	var updated *order.Order
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := r.getOne(ctx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}

		_, err = querier(ctx, r.pool).Exec(ctx, updateOrderStatusSQL,
			o.ID, string(o.Status),
			o.ConfirmedAt, o.PreparingAt, o.ReadyAt, o.DispatchedAt, o.DeliveredAt, o.CancelledAt,
			o.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "update order %s", id)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CountPriorOrders counts every order of the user other than excludeOrderID.
func (r *OrderRepository) CountPriorOrders(ctx context.Context, userID, excludeOrderID uuid.UUID) (int, error) {
	var n int
	if err := querier(ctx, r.pool).QueryRow(ctx, countPriorOrdersSQL, userID, excludeOrderID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count prior orders")
	}
	return n, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, id uuid.UUID) (*order.Order, error) {
	q := querier(ctx, r.pool)
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	q := querier(ctx, r.pool)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills Items of every order with a single query.
func (r *OrderRepository) loadItems(ctx context.Context, q dbtx, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			item    order.Item
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Note); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list order items")
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		couponCode *string
		status     string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.DeliveryAddressID,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total, &couponCode, &o.Note, &status,
		&o.ConfirmedAt, &o.PreparingAt, &o.ReadyAt, &o.DispatchedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	o.Status = order.Status(status)
	return o, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
