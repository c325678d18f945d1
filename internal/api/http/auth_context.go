package httpapi

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type authContextKey string

const authUserKey authContextKey = "authUser"

// AuthUser represents the authenticated caller in context.
type AuthUser struct {
	UserID uuid.UUID
	Role   string
}

// Group is the notification audience group of the caller's role.
func (u AuthUser) Group() string {
	return "role:" + strings.ToUpper(u.Role)
}

func (u AuthUser) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

func withAuthUser(ctx context.Context, u *AuthUser) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, authUserKey, u)
}

func authUserFromContext(ctx context.Context) *AuthUser {
	val := ctx.Value(authUserKey)
	if v, ok := val.(*AuthUser); ok {
		return v
	}
	return nil
}
