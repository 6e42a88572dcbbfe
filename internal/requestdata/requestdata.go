// Package requestdata carries per-request values through context.
package requestdata

import (
	"context"

	"github.com/SuperscriptSystems/Quillio/internal/types"
)

type contextKey string

const userKey contextKey = "request_user"

// WithUser attaches the authenticated user to the context.
func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(ctx context.Context) *types.User {
	u, _ := ctx.Value(userKey).(*types.User)
	return u
}
