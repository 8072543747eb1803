package auth

import "context"

type profileContextKey struct{}
type tokenContextKey struct{}

// ContextWithProfile attaches the authenticated profile to the context.
func ContextWithProfile(ctx context.Context, profile Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, &profile)
}

// ProfileFromContext extracts the authenticated profile from the context.
func ProfileFromContext(ctx context.Context) (Profile, bool) {
	if ctx == nil {
		return Profile{}, false
	}
	v, ok := ctx.Value(profileContextKey{}).(*Profile)
	if !ok || v == nil {
		return Profile{}, false
	}
	return *v, true
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := ProfileFromContext(ctx)
	if !ok || p.ID == "" {
		return "", false
	}
	return p.ID, true
}

// HasRole reports whether the context carries a profile with the role.
func HasRole(ctx context.Context, role Role) bool {
	p, ok := ProfileFromContext(ctx)
	return ok && p.Role == role
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
