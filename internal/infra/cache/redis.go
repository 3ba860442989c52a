package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter реализует domain.RateLimiter фиксированным окном через INCR/EXPIRE.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter создаёт лимитер на limit запросов за window.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow увеличивает счётчик окна и сообщает, уложился ли ключ в лимит.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	seconds := int64(l.window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	bucket := time.Now().Unix() / seconds
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// Window возвращает длину окна.
func (l *RedisLimiter) Window() time.Duration {
	return l.window
}
