// Package auth describes who is calling and what they own.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the caller's marketplace role.
type Role string

const (
	RoleCustomer        Role = "CUSTOMER"
	RoleRestaurantOwner Role = "RESTAURANT_OWNER"
	RoleAdmin           Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleRestaurantOwner, RoleAdmin:
		return true
	default:
		return false
	}
}

// Principal is an authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the principal bypasses ownership checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Ownership answers relationship questions owned by the identity and
// catalog services.
type Ownership interface {
	RestaurantBelongsTo(ctx context.Context, restaurantID, userID uuid.UUID) (bool, error)
	AddressBelongsTo(ctx context.Context, addressID, userID uuid.UUID) (bool, error)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
