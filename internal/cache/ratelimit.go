package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter is a fixed-window counter shared across API replicas. When
// Redis is unreachable the limiter degrades open: paging traffic must
// not be dropped because the cache is down.
type Limiter struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewLimiter(rdb *redis.Client, logger zerolog.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger}
}

// Allow counts a hit against the key's current window and reports
// whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) bool {
	bucket := time.Now().Unix() / int64(window.Seconds())
	k := fmt.Sprintf("rl:%s:%s:%d", scope, key, bucket)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, admitting request")
		return true
	}
	return count.Val() <= int64(limit)
}
