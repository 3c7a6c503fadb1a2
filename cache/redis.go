package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrLockBusy is returned when a lock is still held by someone else after retrying.
var ErrLockBusy = errors.New("lock is held by another request")

const retryStep = 50 * time.Millisecond

// Client wraps a Redis connection and a lock client on top of it.
type Client struct {
	rdb    *redis.Client
	locker *redislock.Client
	log    *logrus.Logger
}

// Connect dials addr and verifies the connection with a ping.
func Connect(ctx context.Context, addr string, log *logrus.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	log.WithField("addr", addr).Info("connected to redis")
	return New(rdb, log), nil
}

func New(rdb *redis.Client, log *logrus.Logger) *Client {
	return &Client{rdb: rdb, locker: redislock.New(rdb), log: log}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Obtain takes key for ttl, retrying with linear backoff for at most ttl. It satisfies
// invoicing.Locker.
func (c *Client) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	retries := int(ttl / retryStep)
	lock, err := c.locker.Obtain(ctx, "lock:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryStep), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	if err != nil {
		return nil, err
	}
	return c.releaser(lock, key), nil
}

// TryObtain takes key without waiting. ok is false when another holder has it.
func (c *Client) TryObtain(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	lock, err := c.locker.Obtain(ctx, "lock:"+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c.releaser(lock, key), true, nil
}

func (c *Client) releaser(lock *redislock.Lock, key string) func() {
	return func() {
		// the lock may have expired already; that is not an error for the caller
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.log.WithError(err).WithField("key", key).Warn("release redis lock")
		}
	}
}
