// Package antispam throttles state-changing API calls per user with a
// sliding window.
package antispam

import (
	"sync"
	"time"
)

// Config holds anti-spam configuration
type Config struct {
	Enabled    bool          // Whether throttling is enabled
	MaxActions int           // Max actions allowed in the time window
	TimeWindow time.Duration // Time window for rate limiting
}

// DefaultConfig returns sensible defaults for anti-spam
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		MaxActions: 30,
		TimeWindow: 10 * time.Second,
	}
}

// ConfigFromYAML creates a Config from YAML-loaded values. Non-positive
// values keep the defaults.
func ConfigFromYAML(enabled bool, maxActions, timeWindowSeconds int) Config {
	cfg := DefaultConfig()
	cfg.Enabled = enabled
	if maxActions > 0 {
		cfg.MaxActions = maxActions
	}
	if timeWindowSeconds > 0 {
		cfg.TimeWindow = time.Duration(timeWindowSeconds) * time.Second
	}
	return cfg
}

// Limiter tracks recent actions per key (normally a username).
type Limiter struct {
	mu      sync.Mutex
	config  Config
	actions map[string][]time.Time // key -> timestamps inside the window, oldest first
	now     func() time.Time
}

// NewLimiter creates a limiter with the given config
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		config:  config,
		actions: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// CheckResult contains the result of a throttle check
type CheckResult struct {
	Allowed     bool
	Reason      string
	WaitSeconds int // How long to wait before trying again (if not allowed)
}

// Check records an action for key if it fits in the window.
func (l *Limiter) Check(key string) CheckResult {
	if l == nil || !l.config.Enabled {
		return CheckResult{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	times := l.prune(key, now)

	if len(times) >= l.config.MaxActions {
		remaining := times[0].Add(l.config.TimeWindow).Sub(now)
		return CheckResult{
			Allowed:     false,
			Reason:      "Too many actions. Please slow down.",
			WaitSeconds: int(remaining.Seconds()) + 1,
		}
	}

	l.actions[key] = append(times, now)
	return CheckResult{Allowed: true}
}

// prune drops timestamps outside the window and returns what is left.
// Must be called with l.mu held.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.config.TimeWindow)
	times := l.actions[key]
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	if len(times) == 0 {
		delete(l.actions, key)
	}
	return times
}

// Sweep forgets keys with no actions inside the window.
func (l *Limiter) Sweep() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key := range l.actions {
		l.prune(key, now)
	}
}

// Tracked returns the number of keys with recent actions.
func (l *Limiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Reset clears all tracking data for key
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.actions, key)
}
