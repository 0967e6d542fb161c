package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter keeps one sorted set per key, scored by hit time in ms, so
// every process sharing the Redis instance sees the same window.
type RedisLimiter struct {
	client   redis.UniversalClient
	limit    int
	window   time.Duration
	prefix   string
	now      func() time.Time
	fallback *MemoryLimiter
	log      zerolog.Logger
}

func NewRedis(client redis.UniversalClient, limit int, window time.Duration, log zerolog.Logger, opts ...Option) *RedisLimiter {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "rl:",
		now:      o.now,
		fallback: NewMemory(limit, window, opts...),
		log:      log,
	}
}

func (l *RedisLimiter) CheckAndRecord(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return l.fallback.CheckAndRecord(ctx, key)
	}
	now := l.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - l.window.Milliseconds()
	redisKey := l.prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
		pipe.ZRemRangeByRank(ctx, redisKey, 0, int64(-l.limit-2))
		card = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		pipe.PExpire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("redis rate limit unavailable, using in-memory fallback")
		return l.fallback.CheckAndRecord(ctx, key)
	}

	resetAt := now.Add(l.window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.UnixMilli(int64(zs[0].Score)).Add(l.window)
	}
	return decide(int(card.Val()), l.limit, resetAt), nil
}

func (l *RedisLimiter) String() string {
	return fmt.Sprintf("redis(limit=%d, window=%s)", l.limit, l.window)
}
