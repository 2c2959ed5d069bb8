package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/unbreakk1/Questify/internal/config"
)

// ConnLimiter caps concurrent push connections per client IP and overall.
// A zero limit disables that cap.
type ConnLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

// ConnStats is a snapshot of limiter usage.
type ConnStats struct {
	Total int // Open connections
	IPs   int // Distinct client addresses
}

// NewConnLimiter creates a limiter from the connections config.
func NewConnLimiter(cfg config.ConnectionsConfig) *ConnLimiter {
	return &ConnLimiter{
		perIP:    make(map[string]int),
		maxPerIP: cfg.MaxPerIP,
		maxTotal: cfg.MaxTotal,
	}
}

// Acquire reserves a slot for ip. On success it returns a release func that
// is safe to call more than once.
func (l *ConnLimiter) Acquire(ip string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return nil, false
	}
	if l.maxPerIP > 0 && l.perIP[ip] >= l.maxPerIP {
		return nil, false
	}
	l.perIP[ip]++
	l.total++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, true
}

func (l *ConnLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch n := l.perIP[ip]; {
	case n > 1:
		l.perIP[ip] = n - 1
	case n == 1:
		delete(l.perIP, ip)
	}
	if l.total > 0 {
		l.total--
	}
}

// Stats returns current usage.
func (l *ConnLimiter) Stats() ConnStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ConnStats{Total: l.total, IPs: len(l.perIP)}
}

// InUse returns the number of slots held by ip.
func (l *ConnLimiter) InUse(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

// clientIP resolves the caller's address. A reverse proxy's X-Forwarded-For
// (first hop) or X-Real-IP wins over the socket address when it parses as an IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
