package tenantauthz

import "context"

type authContextKey struct{}

// ContextWithAuth attaches ac to ctx for the rest of the request.
func ContextWithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthFromContext returns the AuthContext attached by ContextWithAuth.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
