package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/delivery-api/internal/domain/auth"
)

const (
	defaultMostUsedLimit = 10
	recentUsagesLimit    = 10
)

// CreateRequest holds the definition of a new coupon.
type CreateRequest struct {
	Code           string
	Description    string
	Kind           Kind
	Value          decimal.Decimal
	MaxDiscount    *decimal.Decimal
	MinSubtotal    *decimal.Decimal
	ValidUntil     time.Time
	MaxUses        *int
	MaxUsesPerUser *int
	RestaurantID   *uuid.UUID
	FirstOrderOnly bool
}

// Nullable is an optional change to a nullable coupon field. When Set is
// true the field becomes Value, so a nil Value removes the restriction.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a change that sets the field to v.
func SetTo[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }

// Clear returns a change that removes the field.
func Clear[T any]() Nullable[T] { return Nullable[T]{Set: true} }

func (n Nullable[T]) apply(dst **T) {
	if n.Set {
		*dst = n.Value
	}
}

// UpdateRequest holds optional changes to an existing coupon. Nil pointers
// and unset Nullable fields are left untouched. Code, kind and scope are
// immutable.
type UpdateRequest struct {
	Description    *string
	Value          *decimal.Decimal
	MaxDiscount    Nullable[decimal.Decimal]
	MinSubtotal    Nullable[decimal.Decimal]
	ValidUntil     *time.Time
	MaxUses        Nullable[int]
	MaxUsesPerUser Nullable[int]
	FirstOrderOnly *bool
	Active         *bool
}

// Service manages coupon definitions.
type Service struct {
	repo   Repository
	owners auth.Ownership
	tx     Transactor
	now    func() time.Time
}

// NewService creates a coupon management Service.
func NewService(repo Repository, owners auth.Ownership, tx Transactor) *Service {
	return &Service{repo: repo, owners: owners, tx: tx, now: time.Now}
}

// Create validates and stores a new coupon. Restaurant owners may only
// create coupons scoped to their own restaurants; store-wide coupons are
// reserved for administrators.
func (s *Service) Create(ctx context.Context, actor auth.Principal, req CreateRequest) (*Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, &RuleError{Field: "code", Reason: "required"}
	}

	if err := s.authorize(ctx, actor, req.RestaurantID); err != nil {
		return nil, err
	}

	rule, err := NewRule(req.Kind, req.Value, req.MaxDiscount)
	if err != nil {
		return nil, &RuleError{Field: "kind", Reason: "must be PERCENTAGE or FIXED"}
	}

	now := s.now()
	c := &Coupon{
		ID:             uuid.New(),
		Code:           code,
		Description:    req.Description,
		Rule:           rule,
		MinSubtotal:    req.MinSubtotal,
		ValidUntil:     req.ValidUntil,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		RestaurantID:   req.RestaurantID,
		FirstOrderOnly: req.FirstOrderOnly,
		Active:         true,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.check(c); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("code", c.Code),
		zap.String("kind", string(c.Rule.Kind())),
		zap.Stringer("created_by", actor.UserID),
	)
	return c, nil
}

// Update applies req to the coupon identified by id. The coupon row stays
// locked until the write commits so the usage counter cannot move past a
// lowered cap.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, req UpdateRequest) (*Coupon, error) {
	var c *Coupon
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.LockByID(ctx, id)
		if err != nil {
			return errors.Wrap(err, "lock coupon")
		}
		if err := s.authorize(ctx, actor, c.RestaurantID); err != nil {
			return err
		}
		if err := s.apply(c, req); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return errors.Wrap(err, "update coupon")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon updated",
		zap.String("code", c.Code),
		zap.Bool("active", c.Active),
		zap.Stringer("updated_by", actor.UserID),
	)
	return c, nil
}

func (s *Service) apply(c *Coupon, req UpdateRequest) error {
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.Value != nil || req.MaxDiscount.Set {
		value, maxDiscount := Value(c.Rule)
		if req.Value != nil {
			value = *req.Value
		}
		req.MaxDiscount.apply(&maxDiscount)

		rule, err := NewRule(c.Rule.Kind(), value, maxDiscount)
		if err != nil {
			return err
		}
		c.Rule = rule
	}
	req.MinSubtotal.apply(&c.MinSubtotal)
	if req.ValidUntil != nil {
		c.ValidUntil = *req.ValidUntil
	}
	req.MaxUses.apply(&c.MaxUses)
	req.MaxUsesPerUser.apply(&c.MaxUsesPerUser)
	if req.FirstOrderOnly != nil {
		c.FirstOrderOnly = *req.FirstOrderOnly
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	c.UpdatedAt = s.now()

	if err := s.check(c); err != nil {
		return err
	}
	if c.MaxUses != nil && *c.MaxUses < c.Uses {
		return &RuleError{Field: "maxUses", Reason: "cannot be lower than current uses"}
	}
	return nil
}

// Get returns a coupon with its latest usages. Owners only see coupons of
// their own restaurants.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Details, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	if err := s.authorize(ctx, actor, c.RestaurantID); err != nil {
		return nil, err
	}

	usages, err := s.repo.RecentUsages(ctx, c.ID, recentUsagesLimit)
	if err != nil {
		return nil, errors.Wrap(err, "recent usages")
	}
	return &Details{Coupon: *c, RecentUsages: usages}, nil
}

// List returns coupons for management, inactive and expired ones included.
// Administrators see every coupon; owners see the coupons of the
// restaurants they own.
func (s *Service) List(ctx context.Context, actor auth.Principal, restaurantID *uuid.UUID, active *bool) ([]Coupon, error) {
	f := ListFilter{RestaurantID: restaurantID, Active: active}
	switch {
	case actor.IsAdmin():
	case actor.Role != auth.RoleRestaurantOwner:
		return nil, ErrNotOwner
	case restaurantID != nil:
		if err := s.authorize(ctx, actor, restaurantID); err != nil {
			return nil, err
		}
	default:
		f.OwnerID = &actor.UserID
	}

	coupons, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// GetByCode returns the coupon with the given code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrap(err, "find coupon")
	}
	return c, nil
}

// ListActive returns coupons that are active and not expired, optionally
// filtered by restaurant.
func (s *Service) ListActive(ctx context.Context, restaurantID *uuid.UUID) ([]Coupon, error) {
	coupons, err := s.repo.ListActive(ctx, s.now(), restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}
	return coupons, nil
}

// MostUsed returns the active coupons with the highest usage counters.
func (s *Service) MostUsed(ctx context.Context, limit int) ([]Coupon, error) {
	if limit <= 0 {
		limit = defaultMostUsedLimit
	}
	coupons, err := s.repo.MostUsed(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list most used coupons")
	}
	return coupons, nil
}

// History returns the user's coupon usages, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	entries, err := s.repo.History(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "coupon history")
	}
	return entries, nil
}

func (s *Service) authorize(ctx context.Context, actor auth.Principal, restaurantID *uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role != auth.RoleRestaurantOwner || restaurantID == nil {
		return ErrNotOwner
	}
	owns, err := s.owners.RestaurantBelongsTo(ctx, *restaurantID, actor.UserID)
	if err != nil {
		return errors.Wrap(err, "check restaurant ownership")
	}
	if !owns {
		return ErrNotOwner
	}
	return nil
}

func (s *Service) check(c *Coupon) error {
	if err := ValidateRule(c.Rule); err != nil {
		return err
	}
	if c.ValidUntil.IsZero() {
		return &RuleError{Field: "validUntil", Reason: "required"}
	}
	if c.MinSubtotal != nil {
		if c.MinSubtotal.IsNegative() {
			return &RuleError{Field: "minSubtotal", Reason: "must not be negative"}
		}
		if err := checkAmount("minSubtotal", *c.MinSubtotal); err != nil {
			return err
		}
	}
	if c.MaxUses != nil && *c.MaxUses <= 0 {
		return &RuleError{Field: "maxUses", Reason: "must be greater than 0"}
	}
	if c.MaxUsesPerUser != nil && *c.MaxUsesPerUser <= 0 {
		return &RuleError{Field: "maxUsesPerUser", Reason: "must be greater than 0"}
	}
	return nil
}
