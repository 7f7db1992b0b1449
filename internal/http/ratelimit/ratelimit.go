package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gitea.jw6.us/james/calsync/internal/http/render"
)

const maxEntries = 10000

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limiters       map[string]*limiterEntry
	mu             sync.Mutex
	rate           rate.Limit
	burst          int
	cleanup        time.Duration
	trustedProxies []*net.IPNet
	now            func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewIPRateLimiter allows r requests per second with bursts of b per client.
// Idle entries are dropped after twice the cleanup interval. Forwarding headers
// are honoured for every peer when trustedProxies is empty, otherwise only for
// peers inside the listed CIDRs or addresses.
func NewIPRateLimiter(r rate.Limit, b int, cleanup time.Duration, trustedProxies []string) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters:       make(map[string]*limiterEntry),
		rate:           r,
		burst:          b,
		cleanup:        cleanup,
		trustedProxies: parseTrustedProxies(trustedProxies),
		now:            time.Now,
	}

	go limiter.cleanupStale()

	return limiter
}

func parseTrustedProxies(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.limiters[ip]
	if !exists {
		if len(l.limiters) >= maxEntries {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

func (l *IPRateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time

	for ip, entry := range l.limiters {
		if oldestIP == "" || entry.lastAccess.Before(oldestTime) {
			oldestIP = ip
			oldestTime = entry.lastAccess
		}
	}

	if oldestIP != "" {
		delete(l.limiters, oldestIP)
	}
}

func (l *IPRateLimiter) cleanupStale() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		l.purgeIdle()
	}
}

func (l *IPRateLimiter) purgeIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cleanup * 2)
	for ip, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := l.getLimiter(l.clientIP(r))

			if !limiter.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				render.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) retryAfterSeconds() int {
	if l.rate <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/float64(l.rate))))
}

func (l *IPRateLimiter) clientIP(r *http.Request) string {
	remoteIP := parseIP(r.RemoteAddr)
	if remoteIP == nil {
		return r.RemoteAddr
	}

	if len(l.trustedProxies) > 0 && !l.trusted(remoteIP) {
		return remoteIP.String()
	}

	// Leftmost X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if parsed := net.ParseIP(strings.TrimSpace(xri)); parsed != nil {
			return parsed.String()
		}
	}

	return remoteIP.String()
}

func (l *IPRateLimiter) trusted(ip net.IP) bool {
	for _, ipnet := range l.trustedProxies {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseIP(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
