// Package ratelimit bounds request rates per client using token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client IP. Idle entries are
// dropped by a background sweep so the map cannot grow without bound.
type ClientLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientEntry
	rps         rate.Limit
	burst       int
	behindProxy bool
}

func NewClientLimiter(rps float64, burst int, behindProxy bool) *ClientLimiter {
	l := &ClientLimiter{
		clients:     make(map[string]*clientEntry),
		rps:         rate.Limit(rps),
		burst:       burst,
		behindProxy: behindProxy,
	}
	go l.cleanup()
	return l
}

// Allow reports whether the client identified by the request may proceed.
func (l *ClientLimiter) Allow(r *http.Request) bool {
	key := l.clientKey(r)

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// Middleware rejects over-limit requests with 429.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ClientLimiter) clientKey(r *http.Request) string {
	if l.behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if idx := strings.IndexByte(fwd, ','); idx != -1 {
				fwd = fwd[:idx]
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *ClientLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		l.mu.Lock()
		for key, entry := range l.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(l.clients, key)
			}
		}
		l.mu.Unlock()
	}
}
