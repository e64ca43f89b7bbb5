// Package retry runs database transactions that may lose a serialization race,
// re-executing them with capped exponential backoff.
package retry

import (
	"context"
	"time"

	"fieldledger/pkg/domain"
)

// Defaults applied when a Policy field is zero.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 10 * time.Millisecond
	DefaultMaxDelay    = 500 * time.Millisecond
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait before the given (1-based) retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	d := p.BaseDelay << shift
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. Exhaustion yields domain.TransactionConflictError
// wrapping the last conflict.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) error {
	p = p.normalized()
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		last = err
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return domain.TransactionConflictError{Attempts: p.MaxAttempts, Err: last}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
