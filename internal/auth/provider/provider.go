// Package provider implements the credential backend behind the session
// controller: a live, database-backed implementation and an in-memory mock
// selected at startup by the mode selector. Both expose the same interface
// and the same error semantics: operations return errors, never panic.
package provider

import (
	"context"

	"manusfisio.app/internal/auth"
)

// Mode labels for logs and metrics.
const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Provider is the uniform credential backend interface. GetSession returns
// (nil, nil) when no valid session exists for the token; errors are reserved
// for infrastructure failures.
type Provider interface {
	Mode() string

	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string, seed auth.ProfileSeed) (*auth.Profile, error)
	// SignOut is idempotent: revoking an already-dead session is not an error.
	SignOut(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, email string) error
	GetSession(ctx context.Context, token string) (*auth.Session, error)

	// Events is the session change notification channel. Subscribers are
	// detached when their context ends.
	Events() *Events
}
