package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, maxRequests int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLimiter(client, "rl:test", maxRequests, window), m
}

func TestRedisLimiter_AllowsUpToMaxThenBlocks(t *testing.T) {
	limiter, _ := newTestRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "192.0.2.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d: allowed = false, want true", i)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "192.0.2.1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("third request: allowed = true, want false")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}

	// 別のキーは独立してカウントされる
	allowed, _, err = limiter.Allow(ctx, "192.0.2.2")
	if err != nil || !allowed {
		t.Errorf("other key: allowed = %v, err = %v; want true, nil", allowed, err)
	}
}

func TestRedisLimiter_SetsWindowExpiry(t *testing.T) {
	limiter, m := newTestRedisLimiter(t, 5, 30*time.Second)

	if _, _, err := limiter.Allow(context.Background(), "user-1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	key := "rl:test:30:user-1"
	if !m.Exists(key) {
		t.Fatalf("key %q not found in redis", key)
	}
	if ttl := m.TTL(key); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", ttl)
	}
}

func TestRedisLimiter_CounterWithoutTTL_GetsWindow(t *testing.T) {
	limiter, m := newTestRedisLimiter(t, 5, 30*time.Second)

	key := "rl:test:30:user-1"
	if err := m.Set(key, "5"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	allowed, retryAfter, err := limiter.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("allowed = true, want false over the limit")
	}
	if retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", retryAfter)
	}
	if ttl := m.TTL(key); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", ttl)
	}

	m.FastForward(31 * time.Second)

	if allowed, _, _ := limiter.Allow(context.Background(), "user-1"); !allowed {
		t.Error("request after window should be allowed")
	}
}

func TestRedisLimiter_ExistingWindowIsNotExtended(t *testing.T) {
	limiter, m := newTestRedisLimiter(t, 5, 30*time.Second)
	ctx := context.Background()

	if _, _, err := limiter.Allow(ctx, "user-1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	m.FastForward(10 * time.Second)
	if _, _, err := limiter.Allow(ctx, "user-1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	key := "rl:test:30:user-1"
	if got := m.TTL(key); got != 20*time.Second {
		t.Errorf("TTL = %v, want 20s", got)
	}
	if got, _ := m.Get(key); got != "2" {
		t.Errorf("count = %q, want 2", got)
	}
}

func TestRedisLimiter_WindowResets(t *testing.T) {
	limiter, m := newTestRedisLimiter(t, 1, 10*time.Second)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "user-1"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := limiter.Allow(ctx, "user-1"); allowed {
		t.Fatal("second request should be blocked")
	}

	m.FastForward(11 * time.Second)

	if allowed, _, _ := limiter.Allow(ctx, "user-1"); !allowed {
		t.Error("request after window should be allowed")
	}
}

func TestRedisLimiter_UnavailableReturnsError(t *testing.T) {
	limiter, m := newTestRedisLimiter(t, 1, time.Minute)
	m.Close()

	if _, _, err := limiter.Allow(context.Background(), "user-1"); err == nil {
		t.Error("Allow() error = nil, want error when redis is down")
	}
}

func TestRedisLimiter_MiddlewareReturns429(t *testing.T) {
	limiter, _ := newTestRedisLimiter(t, 1, time.Minute)
	handler := NewRateLimitMiddleware(limiter, LimitTypeAuth, ClientIPKey, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		return req
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newReq())
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, newReq())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}
