package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper logger 可以为 nil
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(scope, id string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, id)
}

// Done 报告 (scope, id) 在 TTL 内是否已经处理成功。Redis 不可用时返回 false，
// 宁可重复也不丢
func (d *Deduper) Done(ctx context.Context, scope, id string) bool {
	key := dedupKey(scope, id)

	n, err := d.rdb.Exists(ctx, key).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
		return false
	}

	if n > 0 {
		d.logger.Info("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.String("dedup_key", key),
		)
		return true
	}
	return false
}

// MarkDone 在处理成功之后调用；处理前崩溃不会留下标记
func (d *Deduper) MarkDone(ctx context.Context, scope, id string) {
	key := dedupKey(scope, id)
	if err := d.rdb.Set(ctx, key, 1, d.ttl).Err(); err != nil {
		d.logger.Warn("Failed to mark dedup key", zap.String("dedup_key", key), zap.Error(err))
	}
}
