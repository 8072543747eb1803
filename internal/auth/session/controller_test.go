package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/auth/profile"
	"manusfisio.app/internal/auth/provider"
)

// fakeProvider scripts backend behaviour per test.
type fakeProvider struct {
	mode      string
	events    *provider.Events
	signInFn  func(ctx context.Context, email, password string) (*auth.Session, error)
	getFn     func(ctx context.Context, token string) (*auth.Session, error)
	signOutFn func(ctx context.Context, token string) error
}

func newFakeProvider(mode string) *fakeProvider {
	return &fakeProvider{mode: mode, events: provider.NewEvents()}
}

func (f *fakeProvider) Mode() string { return f.mode }

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	if f.signInFn == nil {
		return nil, auth.ErrInvalidCredentials
	}
	return f.signInFn(ctx, email, password)
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string, seed auth.ProfileSeed) (*auth.Profile, error) {
	return nil, auth.ErrNotSupported
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	if f.signOutFn == nil {
		return nil
	}
	return f.signOutFn(ctx, token)
}

func (f *fakeProvider) ResetPassword(ctx context.Context, email string) error { return nil }

func (f *fakeProvider) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	if f.getFn == nil {
		return nil, nil
	}
	return f.getFn(ctx, token)
}

func (f *fakeProvider) Events() *provider.Events { return f.events }

// fakeStore serves a fixed set of profiles.
type fakeStore struct {
	profiles map[string]*auth.Profile
}

func (s *fakeStore) Find(ctx context.Context, id string) (*auth.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) List(ctx context.Context) ([]*auth.Profile, error) { return nil, nil }

func (s *fakeStore) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.Profile, error) {
	return nil, auth.ErrNotFound
}

func testSession(user string) *auth.Session {
	return &auth.Session{
		ID:          "sess-" + user,
		UserID:      user,
		AccessToken: "token-" + user,
		ExpiresAt:   time.Now().Add(time.Hour),
		CreatedAt:   time.Now(),
	}
}

func testResolver(t *testing.T, store profile.Store) *profile.Resolver {
	t.Helper()
	r, err := profile.NewResolver(store, profile.FailClosed{}, false)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func waitForState(t *testing.T, c *Controller, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := c.Current()
		if snap.State == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never became %s, last %s", want, c.Current().State)
	return Snapshot{}
}

func TestStartWithoutTokenIsUnauthenticated(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	store := &fakeStore{profiles: map[string]*auth.Profile{}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if got := c.Current().State; got != StateUninitialized {
		t.Fatalf("initial state: %s", got)
	}
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.Current().State; got != StateUnauthenticated {
		t.Fatalf("state after start: %s", got)
	}
}

func TestStartMockModeSkipsLoading(t *testing.T) {
	p := newFakeProvider(provider.ModeMock)
	r, err := profile.NewResolver(nil, profile.FailClosed{}, true)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	c, err := New(p, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	sub := c.Subscribe(t.Context())
	if err := c.Start(t.Context(), "stale-restored-token"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-sub // initial Uninitialized snapshot
	next := <-sub
	if next.State != StateUnauthenticated {
		t.Fatalf("mock start must land directly in unauthenticated, got %s", next.State)
	}
	if next.Loading {
		t.Fatal("mock start must never publish a loading snapshot")
	}
}

func TestStartRestoresSession(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.getFn = func(ctx context.Context, token string) (*auth.Session, error) {
		if token != "token-user-1" {
			return nil, nil
		}
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Email: "ana@clinica.com.br", Role: auth.RoleMentor},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Start(t.Context(), "token-user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := c.Current()
	if !snap.Authenticated() {
		t.Fatalf("expected authenticated, got %+v", snap)
	}
	if snap.Profile.Role != auth.RoleMentor {
		t.Fatalf("unexpected role: %s", snap.Profile.Role)
	}
}

func TestSignInPublishesLoadingThenAuthenticated(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Email: "ana@clinica.com.br", Role: auth.RoleIntern},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sub := c.Subscribe(t.Context())
	<-sub // current unauthenticated snapshot

	if err := c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	loading := <-sub
	if loading.State != StateLoading || !loading.Loading {
		t.Fatalf("expected loading snapshot, got %+v", loading)
	}
	final := <-sub
	if !final.Authenticated() {
		t.Fatalf("expected authenticated snapshot, got %+v", final)
	}
	if final.Loading {
		t.Fatal("loading flag not cleared")
	}
	if final.Session == nil || final.Session.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", final.Session)
	}
}

func TestSignInFailureClearsLoading(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return nil, auth.ErrInvalidCredentials
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = c.SignIn(t.Context(), "ninguem@clinica.com.br", "errada")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	snap := c.Current()
	if snap.State != StateUnauthenticated || snap.Loading {
		t.Fatalf("expected settled unauthenticated, got %+v", snap)
	}
}

// A sign-in whose session has no profile row resolves to "no user" under the
// production fallback, never to a synthetic identity.
func TestSignInWithoutProfileFailsClosed(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("ghost"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := c.SignIn(t.Context(), "ghost@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	snap := c.Current()
	if snap.State != StateUnauthenticated || snap.Profile != nil {
		t.Fatalf("fail-closed sign-in leaked a profile: %+v", snap)
	}
}

// A slow sign-in that completes after a sign-out must not resurrect the
// session: the older generation loses.
func TestStaleSignInCannotOverwriteSignOut(t *testing.T) {
	release := make(chan struct{})
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		<-release
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123")
	}()
	waitForState(t, c, StateLoading)

	if err := c.SignOut(t.Context()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// Give the stale completion a moment to (incorrectly) publish.
	time.Sleep(50 * time.Millisecond)
	snap := c.Current()
	if snap.State != StateUnauthenticated || snap.Profile != nil {
		t.Fatalf("stale sign-in overwrote sign-out: %+v", snap)
	}
}

// A provider that never answers must not leave the controller in Loading:
// the call timeout settles the state.
func TestSignInTimeoutSettlesUnauthenticated(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{}}
	c, err := New(p, testResolver(t, store), WithCallTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	err = c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("sign-in hung for %s", elapsed)
	}
	snap := c.Current()
	if snap.State != StateUnauthenticated || snap.Loading {
		t.Fatalf("expected settled unauthenticated, got %+v", snap)
	}
}

// Events published immediately after Start returns must be observed: the
// subscription is established before Start hands control back.
func TestEventRightAfterStartIsApplied(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.getFn = func(ctx context.Context, token string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), "token-user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.Current().State; got != StateAuthenticated {
		t.Fatalf("state after restore: %s", got)
	}

	// No sleep on purpose: the event must be queued even if the watcher
	// goroutine has not run yet.
	p.events.Publish(provider.Event{Type: provider.EventExpired, UserID: "user-1", SessionID: "sess-user-1"})
	waitForState(t, c, StateUnauthenticated)
}

// A fresh subscriber's first delivery is the snapshot current at subscribe
// time; transitions fired right after must queue behind it, in order.
func TestSubscribeDeliversSnapshotsInOrder(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sub := c.Subscribe(t.Context())
	if err := c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	want := []State{StateUnauthenticated, StateLoading, StateAuthenticated}
	for i, state := range want {
		got := <-sub
		if got.State != state {
			t.Fatalf("snapshot #%d: got %s, want %s", i, got.State, state)
		}
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	store := &fakeStore{profiles: map[string]*auth.Profile{}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.SignOut(t.Context()); err != nil {
			t.Fatalf("SignOut #%d: %v", i, err)
		}
		if got := c.Current().State; got != StateUnauthenticated {
			t.Fatalf("SignOut #%d: state %s", i, got)
		}
	}
}

func TestSignOutDropsStateEvenWhenBackendFails(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	p.signOutFn = func(ctx context.Context, token string) error {
		return errors.New("backend indisponível")
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if err := c.SignOut(t.Context()); err == nil {
		t.Fatal("expected backend error to surface")
	}
	snap := c.Current()
	if snap.State != StateUnauthenticated || snap.Session != nil {
		t.Fatalf("local state not dropped: %+v", snap)
	}
}

func TestBackendExpiryEventUnauthenticates(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitForState(t, c, StateAuthenticated)

	p.events.Publish(provider.Event{Type: provider.EventExpired, UserID: "user-1", SessionID: "sess-user-1"})
	waitForState(t, c, StateUnauthenticated)
}

func TestExpiryEventForOtherSessionIgnored(t *testing.T) {
	p := newFakeProvider(provider.ModeLive)
	p.signInFn = func(ctx context.Context, email, password string) (*auth.Session, error) {
		return testSession("user-1"), nil
	}
	store := &fakeStore{profiles: map[string]*auth.Profile{
		"user-1": {ID: "user-1", Role: auth.RoleAdmin},
	}}
	c, err := New(p, testResolver(t, store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if err := c.Start(t.Context(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SignIn(t.Context(), "ana@clinica.com.br", "segredo123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	waitForState(t, c, StateAuthenticated)

	p.events.Publish(provider.Event{Type: provider.EventExpired, UserID: "user-2", SessionID: "sess-user-2"})
	time.Sleep(50 * time.Millisecond)
	if got := c.Current().State; got != StateAuthenticated {
		t.Fatalf("unrelated expiry changed state to %s", got)
	}
}
