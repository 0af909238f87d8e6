// Package redisstore implements webhook delivery deduplication on Redis.
package redisstore

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/engage-orders/internal/domain/payment"
)

const keyPrefix = "engage:webhook:"

// commander is the subset of redis.Cmdable the store needs.
type commander interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ payment.DeliveryStore = (*DeliveryStore)(nil)

// DeliveryStore remembers processed webhook deliveries for a TTL.
type DeliveryStore struct {
	rdb commander
	now func() time.Time
}

// New returns a DeliveryStore backed by rdb.
func New(rdb redis.Cmdable) *DeliveryStore {
	return &DeliveryStore{rdb: rdb, now: time.Now}
}

// Connect parses url, dials Redis and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// Claim marks key as processed. It reports false when another delivery
// already claimed it.
func (s *DeliveryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, s.now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim %q", key)
	}
	return ok, nil
}

// Release forgets key so a redelivery is processed again.
func (s *DeliveryStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrapf(err, "release %q", key)
	}
	return nil
}
