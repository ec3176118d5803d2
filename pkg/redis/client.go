package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"luxuryestates/pkg/config"
)

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// JSONCache stores JSON encoded values under a key prefix.
type JSONCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJSONCache(rdb *redis.Client, prefix string, ttl time.Duration) *JSONCache {
	return &JSONCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Get returns false without error on a cache miss.
func (c *JSONCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, c.prefix+":"+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *JSONCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+":"+key, data, c.ttl).Err()
}

// Generation returns the current cache generation. Keys built from it go stale
// as soon as Bump is called, without scanning the keyspace.
func (c *JSONCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.prefix+":gen").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *JSONCache) Bump(ctx context.Context) error {
	return c.rdb.Incr(ctx, c.prefix+":gen").Err()
}
