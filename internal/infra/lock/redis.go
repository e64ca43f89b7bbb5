// Package lock serialises ledger mutations across processes with a Redis lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"fieldledger/pkg/domain"
)

const (
	defaultTTL     = 30 * time.Second
	defaultRetries = 20
	defaultBackoff = 50 * time.Millisecond
)

// Option customises a RedisLocker.
type Option func(*RedisLocker)

// WithTTL bounds how long a crashed holder can keep the lock.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetry sets how often and how far apart Acquire retries a held lock.
// retries of zero fails on the first contended attempt.
func WithRetry(retries int, backoff time.Duration) Option {
	return func(l *RedisLocker) {
		if retries >= 0 {
			l.retries = retries
		}
		if backoff > 0 {
			l.backoff = backoff
		}
	}
}

// RedisLocker satisfies core.Locker.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// New builds a locker on an existing Redis client.
func New(rdb redis.Scripter, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     defaultTTL,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire obtains key, retrying with linear backoff. A lock still held after
// the last retry is reported as a TransactionConflictError so callers can
// resubmit.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	strategy := redislock.NoRetry()
	if l.retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries)
	}
	held, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.TransactionConflictError{Attempts: l.retries + 1, Err: fmt.Errorf("ledger lock %s: %w", key, err)}
	}
	if err != nil {
		return nil, fmt.Errorf("obtain ledger lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := held.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release ledger lock %s: %w", key, err)
		}
		return nil
	}, nil
}
