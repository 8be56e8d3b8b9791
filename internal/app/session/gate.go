package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultExitDelay = 500 * time.Millisecond

type User struct {
	ID    uuid.UUID `json:"user_id"`
	Email string    `json:"email"`
	Token string    `json:"token,omitempty"`
}

// Provider is the identity provider the gate mediates. Failures should be
// *AuthError values; anything else is reported as an unknown error.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
	SignIn(ctx context.Context, email, password string) (User, error)
	SignUp(ctx context.Context, email, password string) (User, error)
	SignOut(ctx context.Context) error
}

type Option func(*Gate)

func WithExitDelay(d time.Duration) Option {
	return func(g *Gate) { g.exitDelay = d }
}

// WithAfterFunc replaces time.AfterFunc for scheduling the post sign-out callback.
func WithAfterFunc(fn func(time.Duration, func())) Option {
	return func(g *Gate) { g.after = fn }
}

// Gate holds the current user and fans session changes out to observers.
//
// Notifications are delivered one at a time, in the order the changes happened.
// The goroutine that makes a change delivers it before returning unless another
// goroutine is already delivering, in which case that one takes over. A callback
// may call back into the gate; what it triggers is delivered after it returns.
type Gate struct {
	provider  Provider
	lockout   *Lockout
	logger    zerolog.Logger
	exitDelay time.Duration
	after     func(time.Duration, func())

	mu         sync.RWMutex
	user       *User
	resolved   bool
	observers  map[uint64]func(*User)
	nextID     uint64
	pending    []delivery
	delivering bool
}

type delivery struct {
	observer uint64
	user     *User
}

func NewGate(provider Provider, lockout *Lockout, logger zerolog.Logger, opts ...Option) *Gate {
	g := &Gate{
		provider:  provider,
		lockout:   lockout,
		logger:    logger,
		exitDelay: DefaultExitDelay,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		observers: make(map[uint64]func(*User)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Observe registers fn. It is called once with the resolved session (right away
// if already resolved) and then on every change. The returned func unsubscribes.
func (g *Gate) Observe(fn func(*User)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.observers[id] = fn
	if g.resolved {
		g.pending = append(g.pending, delivery{observer: id, user: cloneUser(g.user)})
	}
	g.mu.Unlock()

	g.deliver()
	return sync.OnceFunc(func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	})
}

// Start resolves the initial session. A provider failure resolves as anonymous.
func (g *Gate) Start(ctx context.Context) {
	user, err := g.provider.CurrentUser(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("restore session failed")
		user = nil
	}
	g.setUser(user)
}

func (g *Gate) Resolved() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolved
}

func (g *Gate) User() *User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneUser(g.user)
}

func (g *Gate) SignIn(ctx context.Context, email, password string) (User, error) {
	if g.lockout != nil {
		if err := g.lockout.Check(); err != nil {
			var locked *LockedError
			if errors.As(err, &locked) {
				return User{}, locked
			}
			g.logger.Warn().Err(err).Msg("lockout check failed")
		}
	}

	user, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		if g.lockout != nil {
			if lerr := g.lockout.RecordFailure(); lerr != nil {
				g.logger.Warn().Err(lerr).Msg("record failed sign-in")
			}
		}
		return User{}, g.authError(OpLogin, err)
	}

	if g.lockout != nil {
		if err := g.lockout.Reset(); err != nil {
			g.logger.Warn().Err(err).Msg("reset lockout")
		}
	}
	g.setUser(&user)
	return user, nil
}

func (g *Gate) SignUp(ctx context.Context, email, password string) (User, error) {
	user, err := g.provider.SignUp(ctx, email, password)
	if err != nil {
		return User{}, g.authError(OpSignup, err)
	}
	g.setUser(&user)
	return user, nil
}

// SignOut clears the user and, once the exit delay has passed, runs then.
// On failure the session is left as it was.
func (g *Gate) SignOut(ctx context.Context, then func()) error {
	if err := g.provider.SignOut(ctx); err != nil {
		g.logger.Error().Err(err).Msg("sign out failed")
		return err
	}
	g.setUser(nil)
	if then != nil {
		g.after(g.exitDelay, then)
	}
	return nil
}

func (g *Gate) setUser(user *User) {
	g.mu.Lock()
	g.user = cloneUser(user)
	g.resolved = true
	for id := range g.observers {
		g.pending = append(g.pending, delivery{observer: id, user: cloneUser(user)})
	}
	g.mu.Unlock()

	g.deliver()
}

// deliver drains pending notifications unless another call is already doing so.
// Observers removed after a notification was queued do not receive it.
func (g *Gate) deliver() {
	g.mu.Lock()
	if g.delivering {
		g.mu.Unlock()
		return
	}
	g.delivering = true
	drained := false
	defer func() {
		// A panicking callback leaves the lock released.
		if !drained {
			g.mu.Lock()
			g.delivering = false
			g.mu.Unlock()
		}
	}()
	for len(g.pending) > 0 {
		d := g.pending[0]
		g.pending = g.pending[1:]
		fn, ok := g.observers[d.observer]
		g.mu.Unlock()
		if ok {
			fn(d.user)
		}
		g.mu.Lock()
	}
	g.delivering = false
	drained = true
	g.mu.Unlock()
}

func (g *Gate) authError(op Op, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return &AuthError{Code: authErr.Code, Op: op, Err: authErr.Err}
	}
	g.logger.Error().Err(err).Str("op", string(op)).Msg("identity provider failed")
	return &AuthError{Code: CodeUnknown, Op: op, Err: err}
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
