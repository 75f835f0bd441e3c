package authz

import (
	"context"

	"itsm/pkg/utils/contextkey"
)

// Context is the caller identity established for one request.
// A nil *Context means no session exists.
type Context struct {
	UserID     int64  `json:"user_id"`
	EmployeeID int64  `json:"employee_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
}

// Authenticated reports whether the context carries a usable identity.
func (c *Context) Authenticated() bool {
	return c != nil && c.UserID > 0 && c.Role != ""
}

// WithContext stores ac in ctx along with the user and role keys used by the logger.
func WithContext(ctx context.Context, ac *Context) context.Context {
	if ac == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, contextkey.Principal, ac)
	ctx = context.WithValue(ctx, contextkey.UserID, ac.UserID)
	return context.WithValue(ctx, contextkey.Role, ac.Role)
}

// FromContext returns the identity stored by WithContext, or nil.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	ac, _ := ctx.Value(contextkey.Principal).(*Context)
	return ac
}
