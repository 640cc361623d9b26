package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when no coupon matches.
	ErrNotFound = errors.New("coupon not found")
	// ErrCouponInvalid is wrapped by InvalidError when a coupon fails
	// validation at apply time.
	ErrCouponInvalid = errors.New("coupon invalid")
	// ErrAlreadyApplied is returned when the order already carries a coupon usage.
	ErrAlreadyApplied = errors.New("coupon already applied to order")
	// ErrCodeTaken is returned when creating a coupon with a code in use.
	ErrCodeTaken = errors.New("coupon code already exists")
	// ErrNotOwner is returned when the caller may not manage the coupon.
	ErrNotOwner = errors.New("not allowed to manage coupon")
)

// Reason identifies why a coupon was rejected.
type Reason string

const (
	ReasonNotFound            Reason = "COUPON_NOT_FOUND"
	ReasonInactive            Reason = "COUPON_INACTIVE"
	ReasonExpired             Reason = "COUPON_EXPIRED"
	ReasonExhausted           Reason = "COUPON_EXHAUSTED"
	ReasonWrongRestaurant     Reason = "WRONG_RESTAURANT"
	ReasonBelowMinimum        Reason = "BELOW_MINIMUM"
	ReasonNotFirstOrder       Reason = "NOT_FIRST_ORDER"
	ReasonPerUserLimitReached Reason = "PER_USER_LIMIT_REACHED"
)

// InvalidError reports a coupon that was eligible when quoted but is no
// longer eligible when applied.
type InvalidError struct {
	Reason  Reason
	Message string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("coupon invalid: %s", e.Message)
}

func (e *InvalidError) Unwrap() error {
	return ErrCouponInvalid
}

// Coupon is a discount definition together with its usage counter.
type Coupon struct {
	ID          uuid.UUID
	Code        string
	Description string
	Rule        Rule
	// MinSubtotal, MaxUses and MaxUsesPerUser are nil when unrestricted.
	MinSubtotal    *decimal.Decimal
	ValidUntil     time.Time
	MaxUses        *int
	MaxUsesPerUser *int
	// RestaurantID is nil for store-wide coupons.
	RestaurantID   *uuid.UUID
	FirstOrderOnly bool
	Active         bool
	Uses           int
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usage records one successful application of a coupon to an order.
type Usage struct {
	ID         uuid.UUID
	CouponID   uuid.UUID
	CouponCode string
	UserID     uuid.UUID
	OrderID    uuid.UUID
	Discount   decimal.Decimal
	CreatedAt  time.Time
}

// HistoryEntry is a usage enriched with the coupon and restaurant it
// was applied to.
type HistoryEntry struct {
	Usage
	Description    string
	RestaurantID   uuid.UUID
	RestaurantName string
}

// Details is a coupon together with its most recent usages.
type Details struct {
	Coupon
	RecentUsages []Usage
}

// ListFilter narrows a management listing. Nil fields do not filter.
type ListFilter struct {
	RestaurantID *uuid.UUID
	// OwnerID keeps coupons of restaurants owned by this user.
	OwnerID *uuid.UUID
	Active  *bool
}

// NormalizeCode canonicalizes a user-supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Store is the read side needed to evaluate a coupon.
type Store interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// OrderHistory reports how many orders a user placed before.
type OrderHistory interface {
	// CountPriorOrders counts the user's orders, ignoring excludeOrderID.
	CountPriorOrders(ctx context.Context, userID, excludeOrderID uuid.UUID) (int, error)
}

// LedgerStore extends Store with the writes performed when a coupon is applied.
type LedgerStore interface {
	Store
	// LockByCode loads the coupon and holds a row lock until the
	// surrounding transaction ends.
	LockByCode(ctx context.Context, code string) (*Coupon, error)
	// RecordUsage returns ErrAlreadyApplied if the order already has a usage.
	RecordUsage(ctx context.Context, u *Usage) error
	// IncrementUses bumps the counter unless the global cap is reached,
	// reporting whether the increment happened.
	IncrementUses(ctx context.Context, couponID uuid.UUID) (bool, error)
}

// Repository is the persistence used by coupon management.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	// LockByID loads the coupon and holds a row lock until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Update(ctx context.Context, c *Coupon) error
	List(ctx context.Context, f ListFilter) ([]Coupon, error)
	ListActive(ctx context.Context, now time.Time, restaurantID *uuid.UUID) ([]Coupon, error)
	MostUsed(ctx context.Context, limit int) ([]Coupon, error)
	History(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error)
	RecentUsages(ctx context.Context, couponID uuid.UUID, limit int) ([]Usage, error)
}

// Transactor runs fn inside a storage transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
