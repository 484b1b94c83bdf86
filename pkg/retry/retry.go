// Package retry re-runs short storage round trips that failed for a
// transient reason. Scheduling is delegated to cenkalti/backoff; this
// package adds the error classifier and an attempt-numbered notify hook.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Permanent marks err so that Do returns it at once, unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err carries the Permanent mark.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// Policy describes how an operation is retried. The zero value runs the
// operation once.
type Policy struct {
	// Attempts counts the first call too.
	Attempts int

	// BaseDelay doubles after every failed attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter spreads each delay by ±Jitter of its value, 0..1.
	Jitter float64

	// Retryable classifies errors; nil retries everything not Permanent.
	Retryable func(error) bool

	// Notify runs before each wait.
	Notify func(attempt int, err error, delay time.Duration)
}

// DatabasePolicy is tuned for single-statement database calls.
func DatabasePolicy(retryable func(error) bool, notify func(attempt int, err error, delay time.Duration)) Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    0.05,
		Retryable: retryable,
		Notify:    notify,
	}
}

func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	return b
}

// Do calls op until it succeeds or one of these holds: the error is
// Permanent or not Retryable, attempts are used up, ctx is done. Once op
// has run, its last error is returned rather than ctx.Err.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var (
		attempt int
		lastErr error
	)
	out, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.schedule()),
		backoff.WithMaxTries(uint(max(p.Attempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if p.Notify != nil {
				p.Notify(attempt, err, delay)
			}
		}),
	)
	if err == nil {
		return out, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return out, perm.Unwrap()
	}
	if lastErr != nil && ctx.Err() != nil {
		return out, lastErr
	}
	return out, err
}
