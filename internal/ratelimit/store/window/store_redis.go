package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore counts hits in fixed windows using epoch-aligned keys. Each
// window slot gets its own key with a TTL, so expired windows clean
// themselves up and no janitor sweep is needed.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	windowSecs := int64(window / time.Second)
	slot := time.Now().Unix() / windowSecs
	slotKey := fmt.Sprintf("ratelimit:%s:%d", key, slot)

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, slotKey)
	pipe.Expire(ctx, slotKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("increment window counter: %w", err)
	}

	resetAt := time.Unix((slot+1)*windowSecs, 0)
	return incr.Val(), resetAt, nil
}

// Sweep is a no-op; slot keys expire on their own.
func (s *RedisStore) Sweep(context.Context, time.Duration) error {
	return nil
}
