package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/taskboard/internal/model"
)

// レート制限の種別
const (
	LimitTypeGeneral = "general"
	LimitTypeAuth    = "auth"
)

// Limiter はキーごとにリクエストを許可するかどうかを判定する。
// 拒否時はretryAfterに再試行までの推定時間を返す。
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimitRecorder はレート制限による拒否を記録する。
type RateLimitRecorder interface {
	RecordRateLimited(limitType string)
}

// KeyFunc はリクエストからレート制限のキーを取り出す。
type KeyFunc func(r *http.Request) (string, bool)

// UserKey はセッションユーザーのIDをキーとする。
// SessionMiddlewareの後に配置する必要がある。
func UserKey(r *http.Request) (string, bool) {
	user, ok := SessionUserFromContext(r.Context())
	if !ok {
		return "", false
	}
	return user.ID, true
}

// ClientIPKey はクライアントIPをキーとする。
// chiのRealIPミドルウェアで書き換えられたRemoteAddrを利用する。
func ClientIPKey(r *http.Request) (string, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return host, host != ""
}

// NewRateLimitMiddleware はキーごとのレート制限ミドルウェアを返す。
// 制限超過時は429とRetry-Afterヘッダーを返す。
// リミッターのバックエンドが失敗した場合はリクエストを許可する（fail-open）。
func NewRateLimitMiddleware(limiter Limiter, limitType string, keyFn KeyFunc, recorder RateLimitRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := keyFn(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("limit_type", limitType),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", limitType),
				)
				if recorder != nil {
					recorder.RecordRateLimited(limitType)
				}
				writeRateLimitResponse(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiterConfig はトークンバケット方式のレート制限の設定を保持する。
type RateLimiterConfig struct {
	Rate            rate.Limit    // 1秒あたりの補充トークン数
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりn回を許可する設定を返す。バーストサイズはnとする。
func PerMinute(n int) RateLimiterConfig {
	if n <= 0 {
		n = 1
	}
	return RateLimiterConfig{
		Rate:            rate.Limit(float64(n) / 60.0),
		Burst:           n,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucketLimiter はプロセス内でキーごとのトークンバケットを管理するLimiter。
type TokenBucketLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Limiter = (*TokenBucketLimiter)(nil)

// NewTokenBucketLimiter は新しいTokenBucketLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewTokenBucketLimiter(config RateLimiterConfig) *TokenBucketLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	l := &TokenBucketLimiter{
		config:   config,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow はキーのトークンを1つ消費できるかを判定する。
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.getOrCreate(key).Allow() {
		return true, 0, nil
	}
	return false, l.refillInterval(), nil
}

// Count は現在管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (l *TokenBucketLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *TokenBucketLimiter) getOrCreate(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if kl, exists := l.limiters[key]; exists {
		kl.lastAccess = now
		return kl.limiter
	}

	limiter := rate.NewLimiter(l.config.Rate, l.config.Burst)
	l.limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: now,
	}
	return limiter
}

// refillInterval は1トークンが補充されるまでの時間を返す。
func (l *TokenBucketLimiter) refillInterval() time.Duration {
	if l.config.Rate <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(l.config.Rate))
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (l *TokenBucketLimiter) cleanup() {
	ttl := l.config.CleanupInterval * 2
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには再試行までの秒数（切り上げ、最低1秒）を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
