package shared

import "context"

// Role tags a caller.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSeller      Role = "seller"
	RoleStorekeeper Role = "storekeeper"
)

// Valid reports whether the role is one the engine knows.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSeller, RoleStorekeeper:
		return true
	}
	return false
}

// Identity is the opaque caller identity supplied per call.
type Identity struct {
	ID   int64
	Role Role
}

// IsZero reports an absent identity.
func (i Identity) IsZero() bool {
	return i.ID == 0 && i.Role == ""
}

// IsAdmin reports whether the caller bypasses role checks.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// SystemIdentity is used by scheduled jobs.
func SystemIdentity() Identity {
	return Identity{ID: -1, Role: RoleAdmin}
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity, zero when absent.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
