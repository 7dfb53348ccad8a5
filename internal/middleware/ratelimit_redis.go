package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter はRedisの固定ウィンドウ方式のLimiter。
// 複数インスタンスで制限を共有する場合に使用する。
// キー形式: <prefix>:<ウィンドウ秒>:<キー>
type RedisLimiter struct {
	client      redis.Cmdable
	prefix      string
	maxRequests int64
	window      time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter は新しいRedisLimiterを生成する。
func NewRedisLimiter(client redis.Cmdable, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		prefix:      prefix,
		maxRequests: int64(maxRequests),
		window:      window,
	}
}

// Allow はウィンドウ内のリクエスト数をインクリメントし、上限以下なら許可する。
// SET NX EXでウィンドウを開始してからINCRするまでをMULTIで実行するため、
// TTLのないカウンターは作られない。
// Redisのエラーはそのまま返す（呼び出し側でfail-openとする）。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := l.prefix + ":" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, l.window)
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// TTLのないキーが残っている場合はウィンドウを設定し直す
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		remaining = l.window
	}

	if incr.Val() <= l.maxRequests {
		return true, 0, nil
	}
	if remaining == 0 {
		remaining = l.window
	}
	return false, remaining, nil
}
