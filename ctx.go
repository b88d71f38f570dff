package identity

import (
	"context"
)

var principalCtxKey = &contextKey{"principal"}
var authResultCtxKey = &contextKey{"auth_result"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalCtxKey).(*Principal)
	return principal, ok && principal != nil
}

// WithAuthResult sets the gateway verdict in the given context
func WithAuthResult(ctx context.Context, result AuthResult) context.Context {
	ctx = context.WithValue(ctx, authResultCtxKey, result)
	if result.Principal != nil {
		ctx = WithPrincipal(ctx, result.Principal)
	}
	return ctx
}

// AuthResultFromContext returns the gateway verdict, anonymous when missing
func AuthResultFromContext(ctx context.Context) AuthResult {
	if ctx == nil {
		return anonymous(ReasonNoToken)
	}
	if result, ok := ctx.Value(authResultCtxKey).(AuthResult); ok {
		return result
	}
	return anonymous(ReasonNoToken)
}
