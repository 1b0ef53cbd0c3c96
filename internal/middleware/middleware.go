package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type tokenBucket struct {
	capacity int
	tokens   float64
	rate     float64 // tokens per second
	last     time.Time
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{capacity: burst, tokens: float64(burst), rate: rate, last: now}
}

// take refills the bucket up to now and consumes one token if available.
func (b *tokenBucket) take(now time.Time) bool {
	delta := now.Sub(b.last).Seconds()
	b.tokens += delta * b.rate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.last = now
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// GlobalRateLimiter shares one bucket across all clients. A non-positive
// rps disables limiting.
func GlobalRateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	return globalRateLimiter(rps, burst, time.Now)
}

func globalRateLimiter(rps float64, burst int, now func() time.Time) func(http.Handler) http.Handler {
	bucket := newTokenBucket(rps, burst, now())
	var mu sync.Mutex
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			allowed := bucket.take(now())
			mu.Unlock()
			if !allowed {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func APIKey(required bool, keys map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}
			k := r.Header.Get("X-API-Key")
			if _, ok := keys[k]; !ok || k == "" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("invalid api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// IPAllowlist blocks requests not in the allowlist when the list is non-empty.
func IPAllowlist(allow []string) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	for _, ip := range allow {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[clientIP(r)]; !ok {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("ip not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
