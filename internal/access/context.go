package access

import (
	"context"
	"slices"
	"strings"

	"github.com/smallbiznis/placementpay/internal/errs"
)

const (
	RoleAdmin  = "admin"
	RoleSystem = "system"
	RoleMember = "member"
)

var (
	ErrUnauthenticated = errs.New(errs.KindUnauthorized, "unauthenticated")
	ErrForbidden       = errs.New(errs.KindForbidden, "forbidden")
)

// Context is the resolved caller identity.
type Context struct {
	UserID string
	Roles  []string
}

func (c Context) HasRole(role string) bool {
	return slices.Contains(c.Roles, strings.ToLower(strings.TrimSpace(role)))
}

func (c Context) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

func (c Context) IsSystem() bool {
	return c.HasRole(RoleSystem)
}

// SeesAll reports whether reads are unrestricted for this caller.
func (c Context) SeesAll() bool {
	return c.IsAdmin() || c.IsSystem()
}

// ActorRole is the most privileged role, used for audit attribution.
func (c Context) ActorRole() string {
	switch {
	case c.IsAdmin():
		return RoleAdmin
	case c.IsSystem():
		return RoleSystem
	case len(c.Roles) > 0:
		return c.Roles[0]
	default:
		return ""
	}
}

// System is the identity used by background sweeps and the broker consumer.
func System() Context {
	return Context{UserID: "system", Roles: []string{RoleSystem}}
}

type contextKey struct{}

func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	ac, ok := ctx.Value(contextKey{}).(Context)
	return ac, ok
}
