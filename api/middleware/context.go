package middleware

import (
	"context"

	"github.com/angelmondragon/stockroom-backend/pkg/enums"
)

type identityKey struct{}

// Identity is the authenticated admin behind a request. Kiosk routes carry none.
type Identity struct {
	AdminID  string
	Name     string
	Role     enums.Role
	AccessID string
}

// WithIdentity attaches the caller identity to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity and whether one was set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func AdminIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.AdminID
}

// AdminNameFromContext returns the display name recorded on the session.
// Stock adjustments fall back to it when no supervisor is given.
func AdminNameFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Name
}

func RoleFromContext(ctx context.Context) enums.Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

// AccessIDFromContext returns the token jti, which doubles as the session id.
func AccessIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.AccessID
}
