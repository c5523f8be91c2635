package redislimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limit defines window and max count per key.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is a Redis-backed sliding window limiter using ZSETs, shared by every
// replica serving the webhook endpoint.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  Limit
}

func New(rdb redis.UniversalClient, prefix string, lim Limit) *Limiter {
	if prefix == "" {
		prefix = "tpay:rl:"
	}
	if lim.Limit <= 0 || lim.Window <= 0 {
		lim = Limit{Limit: 120, Window: time.Minute}
	}
	return &Limiter{rdb: rdb, prefix: prefix, limit: lim}
}

// Allow records a request for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if key == "" {
		return false, errors.New("ratelimit: key required")
	}
	now := time.Now().UnixMilli()
	start := now - l.limit.Window.Milliseconds()
	limitKey := l.prefix + key
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, limitKey, "0", fmt.Sprintf("%d", start))
	pipe.ZAdd(ctx, limitKey, redis.Z{Score: float64(now), Member: member})
	countCmd := pipe.ZCard(ctx, limitKey)
	pipe.PExpire(ctx, limitKey, l.limit.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(l.limit.Limit) {
		// Denied requests do not consume budget.
		l.rdb.ZRem(ctx, limitKey, member)
		return false, nil
	}
	return true, nil
}
