package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/ids"
)

const defaultMockDelay = 250 * time.Millisecond

// mockAllowList is the fixed set of administrator emails the mock backend
// accepts with any password. Development backdoor only: the mock provider
// never runs when the backend is properly configured, and its activation is
// logged at startup.
var mockAllowList = map[string]struct{}{
	"rafael.minatto@yahoo.com.br": {},
	"admin@manusfisio.com.br":     {},
}

// Mock is the in-memory credential backend. No network or database access
// ever happens here.
type Mock struct {
	events *Events
	delay  time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*auth.Session // token -> session
}

// MockOption configures the mock backend.
type MockOption func(*Mock)

// WithMockDelay overrides the deliberate sign-in delay (tests pass 0).
func WithMockDelay(d time.Duration) MockOption {
	return func(m *Mock) {
		if d >= 0 {
			m.delay = d
		}
	}
}

// WithMockClock overrides the time source.
func WithMockClock(fn func() time.Time) MockOption {
	return func(m *Mock) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMock constructs the mock backend.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		events:   NewEvents(),
		delay:    defaultMockDelay,
		now:      time.Now,
		sessions: make(map[string]*auth.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Mode() string    { return ModeMock }
func (m *Mock) Events() *Events { return m.events }

// Allowed reports whether the email is on the mock allow-list.
func Allowed(email string) bool {
	_, ok := mockAllowList[strings.TrimSpace(strings.ToLower(email))]
	return ok
}

// SignIn accepts any password for allow-listed emails after a small
// deliberate delay, mimicking a network round-trip.
func (m *Mock) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	if !Allowed(email) {
		return nil, auth.ErrInvalidCredentials
	}

	now := m.now().UTC()
	profile := auth.SyntheticProfile("")
	session := &auth.Session{
		ID:          ids.New(),
		UserID:      profile.ID,
		AccessToken: "mock-token-" + ids.New(),
		ExpiresAt:   now.Add(12 * time.Hour),
		CreatedAt:   now,
	}

	m.mu.Lock()
	m.sessions[session.AccessToken] = session
	m.mu.Unlock()

	m.events.Publish(Event{Type: EventSignedIn, UserID: session.UserID, SessionID: session.ID, At: now})
	return cloneSession(session), nil
}

// SignUp is a live-backend-only capability.
func (m *Mock) SignUp(ctx context.Context, email, password string, seed auth.ProfileSeed) (*auth.Profile, error) {
	return nil, fmt.Errorf("%w: cadastro não disponível no modo demonstração", auth.ErrNotSupported)
}

// ResetPassword is a live-backend-only capability.
func (m *Mock) ResetPassword(ctx context.Context, email string) error {
	return fmt.Errorf("%w: redefinição de senha não disponível no modo demonstração", auth.ErrNotSupported)
}

func (m *Mock) SignOut(ctx context.Context, token string) error {
	m.mu.Lock()
	session, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
	}
	m.mu.Unlock()

	if ok {
		m.events.Publish(Event{Type: EventSignedOut, UserID: session.UserID, SessionID: session.ID, At: m.now().UTC()})
	}
	return nil
}

func (m *Mock) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[token]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if session.Expired(m.now()) {
		m.events.Publish(Event{Type: EventExpired, UserID: session.UserID, SessionID: session.ID, At: m.now().UTC()})
		return nil, nil
	}
	return cloneSession(session), nil
}

func (m *Mock) sleep(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cloneSession(s *auth.Session) *auth.Session {
	out := *s
	return &out
}
