package middleware

import (
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"xfarm/observability"
)

// visitorTTL is how long an idle client bucket is kept.
const visitorTTL = 5 * time.Minute

// RateLimit configures a token bucket. RatePerSecond takes precedence over
// RequestsPerMinute. Tokens assigns a cost to "METHOD /path" keys, matched
// against the request path first and the chi route pattern second; other
// requests cost DefaultTokens.
type RateLimit struct {
	RatePerSecond     float64
	RequestsPerMinute float64
	Burst             int
	DefaultTokens     int
	Tokens            map[string]int
}

func (l RateLimit) limit() rate.Limit {
	switch {
	case l.RatePerSecond > 0:
		return rate.Limit(l.RatePerSecond)
	case l.RequestsPerMinute > 0:
		return rate.Limit(l.RequestsPerMinute / 60)
	default:
		return 1
	}
}

func (l RateLimit) burst() int {
	if l.Burst > 0 {
		return l.Burst
	}
	return 1
}

func (l RateLimit) cost(req *http.Request) int {
	if n := l.Tokens[req.Method+" "+req.URL.Path]; n > 0 {
		return n
	}
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if n := l.Tokens[req.Method+" "+rctx.RoutePattern()]; n > 0 {
			return n
		}
	}
	if l.DefaultTokens > 0 {
		return l.DefaultTokens
	}
	return 1
}

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one bucket per (module, client) pair. Idle buckets are
// pruned lazily while serving requests.
type RateLimiter struct {
	logger *slog.Logger
	limits map[string]RateLimit
	now    func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Middleware throttles requests under the named limit. Modules without a
// configured limit pass through.
func (r *RateLimiter) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		cfg, ok := r.limits[module]
		if !ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			now := r.now()
			bucket := r.bucket(module+"|"+clientID(req), cfg, now)
			cost := cfg.cost(req)
			if bucket.AllowN(now, cost) {
				next.ServeHTTP(w, req)
				return
			}
			observability.API().RecordThrottle(module, "rate_limit")
			r.logger.Debug("ratelimit: request throttled", "module", module, "path", req.URL.Path, "cost", cost)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs(bucket, cost, now)))
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
		})
	}
}

func (r *RateLimiter) bucket(id string, cfg RateLimit, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) >= visitorTTL {
		for key, v := range r.visitors {
			if now.Sub(v.lastSeen) >= visitorTTL {
				delete(r.visitors, key)
			}
		}
		r.lastSweep = now
	}
	v, ok := r.visitors[id]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(cfg.limit(), cfg.burst())}
		r.visitors[id] = v
	}
	v.lastSeen = now
	return v.bucket
}

// retryAfterSecs rounds up the time needed to refill the missing tokens.
func retryAfterSecs(bucket *rate.Limiter, cost int, now time.Time) int {
	perSecond := float64(bucket.Limit())
	if perSecond <= 0 {
		return 60
	}
	missing := float64(cost) - bucket.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	if secs := int(math.Ceil(missing/perSecond - 1e-9)); secs > 1 {
		return secs
	}
	return 1
}

// clientID identifies the caller by API key, then token subject, then the
// first forwarded hop, then the peer address.
func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if subject, ok := Subject(r.Context()); ok {
		return "sub:" + subject
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return "ip:" + ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}
