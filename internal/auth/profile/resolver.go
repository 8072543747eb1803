package profile

import (
	"context"
	"errors"
	"strings"

	"manusfisio.app/internal/audit"
	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/obs"
)

// FallbackStrategy decides what a failed profile lookup resolves to. The
// choice is made once, at construction, so the security-relevant branch can
// be tested and audited in isolation.
type FallbackStrategy interface {
	Name() string
	Resolve(ctx context.Context, userID string, cause error) (*auth.Profile, error)
}

// FailOpenFallback serves the synthetic profile when the lookup breaks.
// Development only: it keeps local work usable without a seeded database.
type FailOpenFallback struct{}

func (FailOpenFallback) Name() string { return "fail_open" }

func (FailOpenFallback) Resolve(ctx context.Context, userID string, cause error) (*auth.Profile, error) {
	obs.ObserveProfileFallback("fail_open")
	_ = audit.LogEvent(ctx, "auth.profile.fallback", map[string]any{
		"strategy": "fail_open",
		"user_id":  userID,
		"cause":    cause.Error(),
	})
	p := auth.SyntheticProfile(userID)
	return &p, nil
}

// FailClosed resolves a failed lookup to "no profile". The holder of a valid
// session is treated as unauthenticated rather than silently granted the
// synthetic administrator profile.
type FailClosed struct{}

func (FailClosed) Name() string { return "fail_closed" }

func (FailClosed) Resolve(ctx context.Context, userID string, cause error) (*auth.Profile, error) {
	obs.ObserveProfileFallback("fail_closed")
	_ = audit.LogEvent(ctx, "auth.profile.fallback", map[string]any{
		"strategy": "fail_closed",
		"user_id":  userID,
		"cause":    cause.Error(),
	})
	return nil, nil
}

// StrategyFor picks the fallback for a build mode: fail-open only in
// development.
func StrategyFor(development bool) FallbackStrategy {
	if development {
		return FailOpenFallback{}
	}
	return FailClosed{}
}

// Resolver turns an identity user id into a Profile, or a resolved "none".
type Resolver struct {
	store    Store
	fallback FallbackStrategy
	mock     bool
}

// NewResolver constructs a Resolver. With mock set, lookups never touch the
// store and always yield the synthetic profile.
func NewResolver(store Store, fallback FallbackStrategy, mock bool) (*Resolver, error) {
	if !mock && store == nil {
		return nil, errors.New("profile: store is required outside mock mode")
	}
	if fallback == nil {
		return nil, errors.New("profile: fallback strategy is required")
	}
	return &Resolver{store: store, fallback: fallback, mock: mock}, nil
}

// Strategy exposes the configured fallback name for logs.
func (r *Resolver) Strategy() string { return r.fallback.Name() }

// Resolve returns the profile for the user id, (nil, nil) for a resolved
// "known absent", or an error only when the fallback itself failed.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*auth.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	if r.mock {
		p := auth.SyntheticProfile(userID)
		return &p, nil
	}

	p, err := r.store.Find(ctx, userID)
	if err == nil {
		return p, nil
	}
	// Absence and query failure both count as a broken lookup; the strategy
	// decides between synthetic fallback and denial.
	return r.fallback.Resolve(ctx, userID, err)
}
