package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, kind, value, max_discount, min_subtotal,
		valid_until, max_uses, max_uses_per_user, restaurant_id, first_order_only,
		active, uses, created_by, created_at, updated_at`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	insertCouponIfAbsentSQL = createCouponSQL + ` ON CONFLICT (code) DO NOTHING`

	updateCouponSQL = `UPDATE coupons SET description = $2, kind = $3, value = $4,
		max_discount = $5, min_subtotal = $6, valid_until = $7, max_uses = $8,
		max_uses_per_user = $9, first_order_only = $10, active = $11, updated_at = $12
		WHERE id = $1`

	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	lockCouponSQL      = getCouponByCodeSQL + ` FOR UPDATE`
	lockCouponByIDSQL  = getCouponByIDSQL + ` FOR UPDATE`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE ($1::uuid IS NULL OR restaurant_id = $1)
		AND ($2::uuid IS NULL OR restaurant_id IN (SELECT id FROM restaurants WHERE owner_id = $2))
		AND ($3::bool IS NULL OR active = $3)
		ORDER BY created_at DESC, code`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE active AND valid_until > $1
		AND ($2::uuid IS NULL OR restaurant_id = $2)
		ORDER BY valid_until, code`

	mostUsedCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE active ORDER BY uses DESC, code LIMIT $1`

	countUserUsagesSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	recordUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	incrementUsesSQL = `UPDATE coupons SET uses = uses + 1
		WHERE id = $1 AND (max_uses IS NULL OR uses < max_uses)`

	usageHistorySQL = `SELECT u.id, u.coupon_id, c.code, u.user_id, u.order_id, u.discount, u.created_at,
		c.description, o.restaurant_id, r.name
		FROM coupon_usages u
		JOIN coupons c ON c.id = u.coupon_id
		JOIN orders o ON o.id = u.order_id
		JOIN restaurants r ON r.id = o.restaurant_id
		WHERE u.user_id = $1
		ORDER BY u.created_at DESC, u.id`

	recentUsagesSQL = `SELECT u.id, u.coupon_id, c.code, u.user_id, u.order_id, u.discount, u.created_at
		FROM coupon_usages u
		JOIN coupons c ON c.id = u.coupon_id
		WHERE u.coupon_id = $1
		ORDER BY u.created_at DESC, u.id
		LIMIT $2`

	couponCodeKey      = "coupons_code_key"
	usageOrderIDKey    = "coupon_usages_order_id_key"
	defaultCouponLimit = 10
)

var (
	_ coupon.Repository  = (*CouponRepository)(nil)
	_ coupon.LedgerStore = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.LedgerStore
// backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create inserts a coupon. A duplicate code yields coupon.ErrCodeTaken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := querier(ctx, r.pool).Exec(ctx, createCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err, couponCodeKey) {
			return coupon.ErrCodeTaken
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// InsertIfAbsent inserts the coupon unless its code already exists and
// reports whether a row was written.
func (r *CouponRepository) InsertIfAbsent(ctx context.Context, c *coupon.Coupon) (bool, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, insertCouponIfAbsentSQL, couponArgs(c)...)
	if err != nil {
		return false, errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return tag.RowsAffected() == 1, nil
}

// Update writes every mutable coupon field. The usage counter is never
// written here.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	value, maxDiscount := coupon.Value(c.Rule)
	tag, err := querier(ctx, r.pool).Exec(ctx, updateCouponSQL,
		c.ID, c.Description, string(c.Rule.Kind()), value, maxDiscount, c.MinSubtotal,
		c.ValidUntil, c.MaxUses, c.MaxUsesPerUser, c.FirstOrderOnly, c.Active, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update coupon %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// GetByID returns a coupon by its identifier.
func (r *CouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByIDSQL, id)
}

// FindByCode returns a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, getCouponByCodeSQL, code)
}

// LockByCode loads the coupon with FOR UPDATE. It must run inside a
// transaction started by Transactor.InTx.
func (r *CouponRepository) LockByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, lockCouponSQL, code)
}

// LockByID loads the coupon with FOR UPDATE. It must run inside a
// transaction started by Transactor.InTx.
func (r *CouponRepository) LockByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	return r.getOne(ctx, lockCouponByIDSQL, id)
}

// List returns coupons matching f regardless of state, newest first.
func (r *CouponRepository) List(ctx context.Context, f coupon.ListFilter) ([]coupon.Coupon, error) {
	return r.list(ctx, listCouponsSQL, f.RestaurantID, f.OwnerID, f.Active)
}

// ListActive returns coupons that are active and valid at now.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time, restaurantID *uuid.UUID) ([]coupon.Coupon, error) {
	return r.list(ctx, listActiveCouponsSQL, now, restaurantID)
}

// MostUsed returns active coupons by descending usage count.
func (r *CouponRepository) MostUsed(ctx context.Context, limit int) ([]coupon.Coupon, error) {
	if limit <= 0 {
		limit = defaultCouponLimit
	}
	return r.list(ctx, mostUsedCouponsSQL, limit)
}

// CountUserUsages counts how many times userID applied the coupon.
func (r *CouponRepository) CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var n int
	if err := querier(ctx, r.pool).QueryRow(ctx, countUserUsagesSQL, couponID, userID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count user usages")
	}
	return n, nil
}

// RecordUsage inserts a usage row. The unique order_id constraint turns a
// second usage for the same order into coupon.ErrAlreadyApplied.
func (r *CouponRepository) RecordUsage(ctx context.Context, u *coupon.Usage) error {
	_, err := querier(ctx, r.pool).Exec(ctx, recordUsageSQL,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.Discount, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, usageOrderIDKey) {
			return coupon.ErrAlreadyApplied
		}
		return errors.Wrapf(err, "record usage for order %s", u.OrderID)
	}
	return nil
}

// IncrementUses bumps the counter if the global cap allows it.
func (r *CouponRepository) IncrementUses(ctx context.Context, couponID uuid.UUID) (bool, error) {
	tag, err := querier(ctx, r.pool).Exec(ctx, incrementUsesSQL, couponID)
	if err != nil {
		return false, errors.Wrapf(err, "increment uses for coupon %s", couponID)
	}
	return tag.RowsAffected() == 1, nil
}

// History returns the user's coupon usages, newest first.
func (r *CouponRepository) History(ctx context.Context, userID uuid.UUID) ([]coupon.HistoryEntry, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, usageHistorySQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon history")
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.HistoryEntry, error) {
		var e coupon.HistoryEntry
		err := row.Scan(
			&e.ID, &e.CouponID, &e.CouponCode, &e.UserID, &e.OrderID, &e.Discount, &e.CreatedAt,
			&e.Description, &e.RestaurantID, &e.RestaurantName,
		)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list coupon history")
	}
	return entries, nil
}

// RecentUsages returns the latest usages of a coupon.
func (r *CouponRepository) RecentUsages(ctx context.Context, couponID uuid.UUID, limit int) ([]coupon.Usage, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, recentUsagesSQL, couponID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent usages")
	}
	usages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Usage, error) {
		var u coupon.Usage
		err := row.Scan(&u.ID, &u.CouponID, &u.CouponCode, &u.UserID, &u.OrderID, &u.Discount, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "list recent usages")
	}
	return usages, nil
}

func (r *CouponRepository) getOne(ctx context.Context, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get coupon %v", arg)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %v", arg)
	}
	return &c, nil
}

func (r *CouponRepository) list(ctx context.Context, sql string, args ...any) ([]coupon.Coupon, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

func couponArgs(c *coupon.Coupon) []any {
	value, maxDiscount := coupon.Value(c.Rule)
	var createdBy *uuid.UUID
	if c.CreatedBy != uuid.Nil {
		createdBy = &c.CreatedBy
	}
	return []any{
		c.ID, c.Code, c.Description, string(c.Rule.Kind()), value, maxDiscount, c.MinSubtotal,
		c.ValidUntil, c.MaxUses, c.MaxUsesPerUser, c.RestaurantID, c.FirstOrderOnly,
		c.Active, c.Uses, createdBy, c.CreatedAt, c.UpdatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		kind        string
		value       decimal.Decimal
		maxDiscount *decimal.Decimal
		createdBy   *uuid.UUID
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &kind, &value, &maxDiscount, &c.MinSubtotal,
		&c.ValidUntil, &c.MaxUses, &c.MaxUsesPerUser, &c.RestaurantID, &c.FirstOrderOnly,
		&c.Active, &c.Uses, &createdBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	c.Rule, err = coupon.NewRule(coupon.Kind(kind), value, maxDiscount)
	return c, err
}
