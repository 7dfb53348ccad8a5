package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/taskboard/internal/model"
)

// --- モック定義 ---

type mockLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, time.Duration, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if m.allowFn != nil {
		return m.allowFn(ctx, key)
	}
	return true, 0, nil
}

type fakeRateLimitRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *fakeRateLimitRecorder) RecordRateLimited(limitType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[limitType]++
}

func newLimitedHandler(limiter Limiter, keyFn KeyFunc, recorder RateLimitRecorder) http.Handler {
	mw := NewRateLimitMiddleware(limiter, LimitTypeGeneral, keyFn, recorder)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	if userID != "" {
		req = req.WithContext(ContextWithSessionUser(req.Context(), model.SessionUser{ID: userID}))
	}
	return req
}

func testConfig(r rate.Limit, burst int) RateLimiterConfig {
	return RateLimiterConfig{Rate: r, Burst: burst, CleanupInterval: time.Minute}
}

// --- TokenBucketLimiter + ミドルウェア ---

func TestRateLimitMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	limiter := NewTokenBucketLimiter(testConfig(2, 5))
	defer limiter.Stop()
	handler := newLimitedHandler(limiter, UserKey, nil)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	limiter := NewTokenBucketLimiter(testConfig(0.5, 2))
	defer limiter.Stop()
	recorder := &fakeRateLimitRecorder{}
	handler := newLimitedHandler(limiter, UserKey, recorder)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-1"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	// 0.5 token/sec → 2秒で1トークン補充
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
	if recorder.counts[LimitTypeGeneral] != 1 {
		t.Errorf("recorded rate limited = %d, want 1", recorder.counts[LimitTypeGeneral])
	}
}

func TestRateLimitMiddleware_IsolatesKeys(t *testing.T) {
	limiter := NewTokenBucketLimiter(testConfig(1, 1))
	defer limiter.Stop()
	handler := newLimitedHandler(limiter, UserKey, nil)

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-a"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("user-a second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-b"))
	if w.Code != http.StatusOK {
		t.Errorf("user-b first request: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_NoSessionUser_Returns401(t *testing.T) {
	handler := newLimitedHandler(&mockLimiter{
		allowFn: func(context.Context, string) (bool, time.Duration, error) {
			t.Fatal("limiter should not be called without a key")
			return false, 0, nil
		},
	}, UserKey, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(""))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddleware_LimiterErrorFailsOpen(t *testing.T) {
	handler := newLimitedHandler(&mockLimiter{
		allowFn: func(context.Context, string) (bool, time.Duration, error) {
			return false, 0, errors.New("redis: connection refused")
		},
	}, UserKey, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestClientIPKey(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = tt.remoteAddr
		got, ok := ClientIPKey(req)
		if !ok || got != tt.want {
			t.Errorf("ClientIPKey(%q) = %q, %v; want %q", tt.remoteAddr, got, ok, tt.want)
		}
	}
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(120)
	if cfg.Rate != rate.Limit(2) {
		t.Errorf("Rate = %v, want 2", cfg.Rate)
	}
	if cfg.Burst != 120 {
		t.Errorf("Burst = %d, want 120", cfg.Burst)
	}

	if got := PerMinute(0).Burst; got != 1 {
		t.Errorf("PerMinute(0).Burst = %d, want 1", got)
	}
}

func TestWriteRateLimitResponse_RoundsUpToSeconds(t *testing.T) {
	tests := []struct {
		retryAfter time.Duration
		want       int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeRateLimitResponse(w, tt.retryAfter)
		if got := w.Header().Get("Retry-After"); got != strconv.Itoa(tt.want) {
			t.Errorf("Retry-After(%v) = %q, want %d", tt.retryAfter, got, tt.want)
		}
	}
}

// --- クリーンアップのテスト ---

func TestTokenBucketLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	limiter := NewTokenBucketLimiter(RateLimiterConfig{
		Rate:            2,
		Burst:           5,
		CleanupInterval: 50 * time.Millisecond, // テスト用に短く
	})
	defer limiter.Stop()

	if _, _, err := limiter.Allow(context.Background(), "user-cleanup"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if limiter.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", limiter.Count())
	}

	// エントリのTTLはCleanupIntervalの2倍（100ms）
	time.Sleep(300 * time.Millisecond)

	if count := limiter.Count(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestTokenBucketLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewTokenBucketLimiter(PerMinute(10))
	limiter.Stop()
	limiter.Stop()
}
