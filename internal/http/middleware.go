package httpapp

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 256 << 10

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// ipThrottle is a per-client-IP token bucket. Idle buckets are swept lazily.
type ipThrottle struct {
	mu        sync.Mutex
	perSecond rate.Limit
	burst     int
	idle      time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPThrottle(perSecond float64, burst int) *ipThrottle {
	if burst <= 0 {
		burst = 1
	}
	return &ipThrottle{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		idle:      10 * time.Minute,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if now.Sub(t.lastSweep) > time.Minute {
		for k, b := range t.buckets {
			if now.Sub(b.seen) > t.idle {
				delete(t.buckets, k)
			}
		}
		t.lastSweep = now
	}
	b, ok := t.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.perSecond, t.burst)}
		t.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (t *ipThrottle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many registrations from this address"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
