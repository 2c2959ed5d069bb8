package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/unbreakk1/Questify/internal/apperrors"
	"github.com/unbreakk1/Questify/internal/config"
)

// LoginGuard counts failed logins per client IP. Reaching the attempt limit
// locks the IP out; each consecutive lockout doubles, up to the maximum.
type LoginGuard struct {
	mu          sync.Mutex
	entries     map[string]*loginEntry
	maxAttempts int
	lockout     time.Duration
	maxLockout  time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

type loginEntry struct {
	failures    int
	lockouts    int
	lockedUntil time.Time
	lastFailure time.Time
}

// sweepInterval is how often idle entries are dropped.
const sweepInterval = 5 * time.Minute

// NewLoginGuard creates a guard and starts its sweeper. Call Stop to end it.
func NewLoginGuard(cfg config.RateLimitConfig) *LoginGuard {
	g := &LoginGuard{
		entries:     make(map[string]*loginEntry),
		maxAttempts: cfg.MaxAttempts,
		lockout:     time.Duration(cfg.LockoutSeconds) * time.Second,
		maxLockout:  time.Duration(cfg.MaxLockoutSeconds) * time.Second,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 5
	}
	if g.lockout <= 0 {
		g.lockout = 30 * time.Second
	}
	if g.maxLockout < g.lockout {
		g.maxLockout = 10 * g.lockout
	}

	go g.sweepLoop()
	return g
}

// Stop ends the sweeper. Safe to call more than once.
func (g *LoginGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Check returns RATE_LIMITED while ip is locked out.
func (g *LoginGuard) Check(ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[ip]
	if !ok {
		return nil
	}
	if remaining := e.lockedUntil.Sub(g.now()); remaining > 0 {
		return lockedOut(remaining)
	}
	return nil
}

// Fail records a failed attempt. It returns the lockout that started, or
// zero when the IP may keep trying.
func (g *LoginGuard) Fail(ip string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.entries[ip]
	if !ok {
		e = &loginEntry{}
		g.entries[ip] = e
	}
	e.lastFailure = now
	if now.Before(e.lockedUntil) {
		return e.lockedUntil.Sub(now)
	}

	e.failures++
	if e.failures < g.maxAttempts {
		return 0
	}
	e.lockouts++
	e.failures = 0
	d := backoff(g.lockout, g.maxLockout, e.lockouts)
	e.lockedUntil = now.Add(d)
	return d
}

// Succeed forgets the IP's history.
func (g *LoginGuard) Succeed(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, ip)
}

// Failures returns the failed attempts counted toward the next lockout.
func (g *LoginGuard) Failures(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[ip]; ok {
		return e.failures
	}
	return 0
}

// backoff returns base doubled once per prior lockout, capped at limit.
func backoff(base, limit time.Duration, lockouts int) time.Duration {
	d := base
	for i := 1; i < lockouts; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

func lockedOut(remaining time.Duration) error {
	seconds := int((remaining + time.Second - 1) / time.Second)
	return apperrors.WithMetadata(apperrors.CodeRateLimited,
		"too many failed login attempts, try again later",
		map[string]string{"retryAfterSeconds": strconv.Itoa(seconds)})
}

func (g *LoginGuard) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

// sweep drops entries that are unlocked and have been idle past the
// maximum lockout.
func (g *LoginGuard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for ip, e := range g.entries {
		if now.After(e.lockedUntil) && now.Sub(e.lastFailure) > g.maxLockout {
			delete(g.entries, ip)
		}
	}
}
