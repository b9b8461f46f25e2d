// Package identity models the authenticated caller handed to us by the
// upstream auth collaborator. Every core operation receives an owner id
// and a role; nothing here performs authentication.
package identity

import "context"

type Role string

const (
	RoleStandard   Role = "standard"
	RolePrivileged Role = "privileged"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleStandard:
		return RoleStandard, true
	case RolePrivileged:
		return RolePrivileged, true
	}
	return "", false
}

func (r Role) Privileged() bool { return r == RolePrivileged }

// Caller is attached to the request context by the HTTP auth middleware.
type Caller struct {
	Owner string
	Role  Role
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}
