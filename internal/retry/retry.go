// Package retry provides an explicit, composable retry policy used at both
// the tool-call layer (gateway) and the whole-run layer (agent runner).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried: attempt ceiling, backoff
// curve, and which errors are worth retrying at all.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first one.
	// Values below 1 are treated as 1.
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Retryable reports whether the error is transient. A nil predicate
	// retries everything.
	Retryable func(error) bool
}

// DefaultPolicy matches the gateway defaults: 3 attempts, 250ms initial
// backoff doubling up to 5s, with jitter from the underlying backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Do runs op until it succeeds, exhausts the attempt ceiling, hits a
// non-retryable error, or the context is cancelled. It returns the number of
// retries performed (attempts beyond the first) alongside the final error.
func (p Policy) Do(ctx context.Context, op func() error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		bo.Multiplier = p.Multiplier
	}
	bo.Reset()

	retries := 0
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(error, time.Duration) { retries++ }

	err := backoff.RetryNotify(
		wrapped,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx),
		notify,
	)
	return retries, err
}
