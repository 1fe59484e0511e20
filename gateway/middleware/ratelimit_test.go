package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

// hit sends one request through h and returns the recorder.
func hit(h http.Handler, method, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterThrottlesOnceBurstIsSpent(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{"farm": {RatePerSecond: 1, Burst: 1}}, nil)
	h := rl.Middleware("farm")(http.HandlerFunc(okHandler))

	if rec := hit(h, http.MethodGet, "/v1/pools", ""); rec.Code != http.StatusOK {
		t.Fatalf("first call: got %d", rec.Code)
	}
	rec := hit(h, http.MethodGet, "/v1/pools", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call: got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("throttle headers: %v", rec.Header())
	}
}

func TestRateLimiterBucketsAreScoped(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{
		"farm":  {RatePerSecond: 1, Burst: 1},
		"admin": {RatePerSecond: 1, Burst: 1},
	}, nil)
	farm := rl.Middleware("farm")(http.HandlerFunc(okHandler))
	admin := rl.Middleware("admin")(http.HandlerFunc(okHandler))

	steps := []struct {
		name string
		h    http.Handler
		key  string
		want int
	}{
		{"farm tenant-A", farm, "tenant-A", http.StatusOK},
		{"admin tenant-A has its own bucket", admin, "tenant-A", http.StatusOK},
		{"farm tenant-B has its own bucket", farm, "tenant-B", http.StatusOK},
		{"admin tenant-A exhausted", admin, "tenant-A", http.StatusTooManyRequests},
		{"farm tenant-A exhausted", farm, "tenant-A", http.StatusTooManyRequests},
	}
	for _, step := range steps {
		if rec := hit(step.h, http.MethodGet, "/v1/pools/0", step.key); rec.Code != step.want {
			t.Fatalf("%s: got %d, want %d", step.name, rec.Code, step.want)
		}
	}
}

func TestRateLimiterChargesRouteCosts(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{
		"farm": {
			RatePerSecond: 5,
			Burst:         5,
			DefaultTokens: 1,
			Tokens:        map[string]int{"POST /v1/pools/0/deposit": 3},
		},
	}, nil)
	h := rl.Middleware("farm")(http.HandlerFunc(okHandler))

	if rec := hit(h, http.MethodPost, "/v1/pools/0/deposit", ""); rec.Code != http.StatusOK {
		t.Fatalf("deposit 1: got %d", rec.Code)
	}
	if rec := hit(h, http.MethodPost, "/v1/pools/0/deposit", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("deposit 2: got %d", rec.Code)
	}
	// two tokens remain for cheap reads
	if rec := hit(h, http.MethodGet, "/v1/params", ""); rec.Code != http.StatusOK {
		t.Fatalf("params read: got %d", rec.Code)
	}
}

func TestRateLimiterMatchesChiPatterns(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{
		"farm": {
			RequestsPerMinute: 60,
			Burst:             2,
			Tokens:            map[string]int{"POST /v1/pools/{id}/deposit": 2},
		},
	}, nil)
	router := chi.NewRouter()
	router.With(rl.Middleware("farm")).Post("/v1/pools/{id}/deposit", okHandler)

	if rec := hit(router, http.MethodPost, "/v1/pools/7/deposit", "k"); rec.Code != http.StatusOK {
		t.Fatalf("first deposit: got %d", rec.Code)
	}
	if rec := hit(router, http.MethodPost, "/v1/pools/7/deposit", "k"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("pattern cost should drain the burst, got %d", rec.Code)
	}
}

func TestRateLimiterPassesUnconfiguredModules(t *testing.T) {
	h := NewRateLimiter(nil, nil).Middleware("farm")(http.HandlerFunc(okHandler))
	for i := 0; i < 3; i++ {
		if rec := hit(h, http.MethodGet, "/v1/pools", ""); rec.Code != http.StatusOK {
			t.Fatalf("call %d: got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimit{"farm": {RequestsPerMinute: 1, Burst: 1}}, nil)
	clock := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return clock }
	h := rl.Middleware("farm")(http.HandlerFunc(okHandler))

	hit(h, http.MethodGet, "/v1/pools", "tenant-A")
	if rec := hit(h, http.MethodGet, "/v1/pools", "tenant-A"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("tenant A should be throttled, got %d", rec.Code)
	}
	clock = clock.Add(visitorTTL + time.Second)
	if rec := hit(h, http.MethodGet, "/v1/pools", "tenant-B"); rec.Code != http.StatusOK {
		t.Fatalf("tenant B: got %d", rec.Code)
	}

	rl.mu.Lock()
	_, kept := rl.visitors["farm|key:tenant-A"]
	count := len(rl.visitors)
	rl.mu.Unlock()
	if kept || count != 1 {
		t.Fatalf("idle bucket not pruned: kept=%v count=%d", kept, count)
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5000"
	cases := []struct {
		forwarded, apiKey, want string
	}{
		{"", "", "ip:10.0.0.9"},
		{"203.0.113.7, 10.0.0.1", "", "ip:203.0.113.7"},
		{"garbage", "", "ip:10.0.0.9"},
		{"203.0.113.7", " k1 ", "key:k1"},
	}
	for _, tc := range cases {
		req.Header.Set("X-Forwarded-For", tc.forwarded)
		req.Header.Set("X-API-Key", tc.apiKey)
		if got := clientID(req); got != tc.want {
			t.Fatalf("clientID(xff=%q key=%q) = %q, want %q", tc.forwarded, tc.apiKey, got, tc.want)
		}
	}
}
