// Package session implements the session controller: the state machine that
// owns the authenticated-user snapshot published to the rest of the
// application. It is an explicit object with a create/subscribe/close
// lifecycle so tests can run independent instances in parallel; there is no
// package-level state here.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/auth/profile"
	"manusfisio.app/internal/auth/provider"
	"manusfisio.app/internal/obs"
)

// State names the controller's observable states.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
	StateSigningOut      State = "signing_out"
)

// Snapshot is the immutable auth context value published to subscribers.
// Profile and Session are nil when unknown; Loading distinguishes "not yet
// known" from "known absent".
type Snapshot struct {
	State   State
	Loading bool
	Profile *auth.Profile
	Session *auth.Session
}

// Authenticated reports whether the snapshot carries a resolved user.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Profile != nil
}

const defaultCallTimeout = 10 * time.Second

// Controller drives the session state machine over a credential backend and
// a profile resolver.
type Controller struct {
	provider provider.Provider
	resolver *profile.Resolver
	timeout  time.Duration

	mu   sync.Mutex
	snap Snapshot
	// gen increases on every operation that may change the published state;
	// a completion stamped with an old generation is discarded instead of
	// overwriting newer state.
	gen uint64

	subMu   sync.RWMutex
	subs    map[int]chan Snapshot
	nextSub int

	watchCancel context.CancelFunc
	closeOnce   sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithCallTimeout bounds every backend call; a hung backend can therefore
// never leave the controller in Loading forever.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New constructs a Controller in the Uninitialized state.
func New(p provider.Provider, r *profile.Resolver, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, errors.New("session: provider is required")
	}
	if r == nil {
		return nil, errors.New("session: resolver is required")
	}
	c := &Controller{
		provider: p,
		resolver: r,
		timeout:  defaultCallTimeout,
		snap:     Snapshot{State: StateUninitialized},
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start restores the session state and begins watching backend session
// events. With a restored token it passes through Loading; in mock mode it
// lands directly in Unauthenticated so a logged-out mock session never spins.
func (c *Controller) Start(ctx context.Context, restoredToken string) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	c.watchCancel = cancel
	// Subscribe before returning so an event published right after Start
	// cannot slip past an unscheduled watcher goroutine.
	events := c.provider.Events().Subscribe(watchCtx)
	go c.watch(events)

	if c.provider.Mode() == provider.ModeMock || restoredToken == "" {
		c.publish(c.bumpGen(), Snapshot{State: StateUnauthenticated})
		return nil
	}

	gen := c.bumpGen()
	c.publish(gen, Snapshot{State: StateLoading, Loading: true})

	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()

	session, err := c.provider.GetSession(callCtx, restoredToken)
	if err != nil || session == nil {
		c.publish(gen, Snapshot{State: StateUnauthenticated})
		return err
	}
	return c.resolveAndPublish(ctx, gen, session)
}

// SignIn authenticates and, on success, resolves the profile and publishes
// Authenticated. Concurrent calls race deliberately; the generation stamp
// guarantees only the newest completion is published.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	gen := c.bumpGen()
	c.publish(gen, Snapshot{State: StateLoading, Loading: true})

	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()

	session, err := c.provider.SignIn(callCtx, email, password)
	obs.ObserveSignIn(c.provider.Mode(), err == nil)
	if err != nil {
		c.publish(gen, Snapshot{State: StateUnauthenticated})
		return err
	}
	return c.resolveAndPublish(ctx, gen, session)
}

// resolveAndPublish finishes a sign-in or restore: the loading flag is
// cleared on every path out of here.
func (c *Controller) resolveAndPublish(ctx context.Context, gen uint64, session *auth.Session) error {
	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()

	resolved, err := c.resolver.Resolve(callCtx, session.UserID)
	if err != nil {
		c.publish(gen, Snapshot{State: StateUnauthenticated})
		return err
	}
	if resolved == nil {
		// Valid session, no profile: fail-closed resolution. The holder is
		// treated as unauthenticated.
		c.publish(gen, Snapshot{State: StateUnauthenticated})
		return nil
	}
	c.publish(gen, Snapshot{State: StateAuthenticated, Profile: resolved, Session: session})
	return nil
}

// SignUp provisions a new account. It never changes the published state:
// live accounts await confirmation, mock mode refuses outright.
func (c *Controller) SignUp(ctx context.Context, email, password string, seed auth.ProfileSeed) (*auth.Profile, error) {
	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()
	return c.provider.SignUp(callCtx, email, password, seed)
}

// ResetPassword triggers the out-of-band reset flow.
func (c *Controller) ResetPassword(ctx context.Context, email string) error {
	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()
	return c.provider.ResetPassword(callCtx, email)
}

// SignOut invalidates the current session and resets the snapshot entirely.
// Idempotent: signing out while signed out lands in the same terminal state.
func (c *Controller) SignOut(ctx context.Context) error {
	gen := c.bumpGen()

	c.mu.Lock()
	current := c.snap.Session
	c.mu.Unlock()

	if current == nil {
		c.publish(gen, Snapshot{State: StateUnauthenticated})
		return nil
	}

	c.publish(gen, Snapshot{State: StateSigningOut, Loading: true})

	callCtx, done := context.WithTimeout(ctx, c.timeout)
	defer done()
	err := c.provider.SignOut(callCtx, current.AccessToken)

	// Even a failed revocation drops local state; the backend watcher will
	// reconcile if the session later dies server-side.
	c.publish(gen, Snapshot{State: StateUnauthenticated})
	return err
}

// Current returns the latest published snapshot.
func (c *Controller) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers a subscriber. The current snapshot is delivered first;
// the channel closes when the context ends.
func (c *Controller) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 16)

	// Enqueue the current snapshot under the write lock: publish needs the
	// read lock to fan out, so no newer snapshot can jump ahead of it.
	c.subMu.Lock()
	ch <- c.Current()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		delete(c.subs, id)
		close(ch)
		c.subMu.Unlock()
	}()

	return ch
}

// Close stops the event watcher. The controller may not be reused.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.watchCancel != nil {
			c.watchCancel()
		}
	})
}

// watch applies backend-reported session loss: the notification channel is
// the ordering authority, so a loss event always wins over in-flight work.
func (c *Controller) watch(events <-chan provider.Event) {
	for evt := range events {
		if evt.Type != provider.EventSignedOut && evt.Type != provider.EventExpired {
			continue
		}
		c.mu.Lock()
		current := c.snap.Session
		c.mu.Unlock()
		if current == nil || current.ID != evt.SessionID {
			continue
		}
		c.publish(c.bumpGen(), Snapshot{State: StateUnauthenticated})
	}
}

func (c *Controller) bumpGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// publish installs the snapshot if gen is still the newest generation and
// fans it out to subscribers. Stale completions are dropped silently.
func (c *Controller) publish(gen uint64, snap Snapshot) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.snap = snap
	c.mu.Unlock()

	obs.ObserveSessionTransition(string(snap.State))

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop when subscriber is slow to avoid blocking transitions.
		}
	}
}
