package session

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	MaxFailedAttempts = 5
	LockoutWindow     = 300 * time.Second

	KeyLockoutExpiry   = "lockoutExpiry"
	KeyRememberedEmail = "rememberedEmail"
)

// Storage is the durable key/value store on the user's machine.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Lockout refuses sign-in attempts locally after repeated failures. Failures are
// counted in memory; only the expiry is persisted, as epoch milliseconds, so a
// restart keeps an active lock but forgets a partial count. It is a UX courtesy
// and offers no protection against a determined client.
type Lockout struct {
	mu       sync.Mutex
	store    Storage
	now      func() time.Time
	max      int
	window   time.Duration
	failures int
}

func NewLockout(store Storage, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, now: now, max: MaxFailedAttempts, window: LockoutWindow}
}

// Check returns a *LockedError while locked. An expired lock is cleared.
func (l *Lockout) Check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, ok := l.store.Get(KeyLockoutExpiry)
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		_ = l.store.Delete(KeyLockoutExpiry)
		return nil
	}
	now := l.now()
	expiry := time.UnixMilli(ms)
	if now.Before(expiry) {
		return &LockedError{Remaining: expiry.Sub(now)}
	}
	l.failures = 0
	if err := l.store.Delete(KeyLockoutExpiry); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

// RecordFailure counts a failed attempt and starts the lock on the last allowed one.
func (l *Lockout) RecordFailure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	if l.failures < l.max {
		return nil
	}
	l.failures = 0
	expiry := l.now().Add(l.window).UnixMilli()
	if err := l.store.Set(KeyLockoutExpiry, strconv.FormatInt(expiry, 10)); err != nil {
		return fmt.Errorf("persist lockout: %w", err)
	}
	return nil
}

func (l *Lockout) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = 0
	if err := l.store.Delete(KeyLockoutExpiry); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

func (l *Lockout) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// RememberEmail stores or forgets the address offered on the next login.
func RememberEmail(store Storage, email string, remember bool) error {
	if remember {
		return store.Set(KeyRememberedEmail, email)
	}
	return store.Delete(KeyRememberedEmail)
}

func RememberedEmail(store Storage) (string, bool) {
	return store.Get(KeyRememberedEmail)
}
