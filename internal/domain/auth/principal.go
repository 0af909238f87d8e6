package auth

import "context"

// Role is the caller's authorization level.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleOperator
}

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

// IsOperator reports whether the principal may manage any order.
func (p Principal) IsOperator() bool {
	return p.Role == RoleOperator
}

// CanAccess reports whether the principal may read a resource owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsOperator() || (p.UserID != "" && p.UserID == ownerID)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
