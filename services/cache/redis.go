// Package cachesvc holds the Redis backed helpers.
package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/bytedeck/deck/core"
)

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

// Deduper claims keys with SETNX so that a unit of work runs once per key lifetime.
type Deduper struct {
	rdb redis.Cmdable
}

func NewDeduper(rdb redis.Cmdable) *Deduper {
	return &Deduper{rdb: rdb}
}

// Claim reports whether key was free; it is then held for ttl.
func (d *Deduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claiming %s", key)
	}
	return ok, nil
}

// Release frees key, eg. after a failed attempt so that a retry may claim it.
func (d *Deduper) Release(ctx context.Context, key string) error {
	return errors.Wrapf(d.rdb.Del(ctx, key).Err(), "releasing %s", key)
}

// StatusCheck returns nil if redis answers.
func StatusCheck(ctx context.Context, rdb redis.Cmdable) error {
	return rdb.Ping(ctx).Err()
}
