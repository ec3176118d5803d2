package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 第一次计数时设置过期时间，INCR 与 PEXPIRE 原子执行
var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RetryCounter 在 Redis 里记录每条消息的失败次数，MQ 重投时据此决定是否进入 DLQ
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 计数加一；过期时间只在第一次写入时设置，计数不会被续命
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	return incrWithTTL.Run(ctx, r.rdb, []string{key}, r.ttl.Milliseconds()).Int64()
}

func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey retry:<handler>:<id>
func FormatRetryKey(handler, id string) string {
	return "retry:" + handler + ":" + id
}
