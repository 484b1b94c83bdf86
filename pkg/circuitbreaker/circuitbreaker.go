// Package circuitbreaker stops calling an optional dependency after it has
// failed repeatedly, and lets a few probe calls through once a cooldown has
// passed. The fees service guards its Redis cache with it.
//
// The state machine is sony/gobreaker; this package fixes the failure rule
// (consecutive failures, cancelled calls ignored) and the options the
// service configures.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// State of a breaker.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed   // calls pass
	StateHalfOpen = gobreaker.StateHalfOpen // probes decide between closed and open
	StateOpen     = gobreaker.StateOpen     // calls rejected until the cooldown ends
)

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrProbeLimit rejects a call while the half-open probes are in flight.
	ErrProbeLimit = gobreaker.ErrTooManyRequests
)

// IsRejection reports whether err came from the breaker rather than the guarded call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProbeLimit)
}

type options struct {
	threshold uint32
	cooldown  time.Duration
	probes    uint32
	onChange  func(name string, from, to State)
	isFailure func(error) bool
}

// Option configures a CircuitBreaker.
type Option func(*options)

// WithFailureThreshold opens the breaker after n failures in a row.
func WithFailureThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = uint32(n)
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cooldown = d
		}
	}
}

// WithProbes sets how many half-open calls are allowed; all of them must
// succeed to close the breaker.
func WithProbes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.probes = uint32(n)
		}
	}
}

// WithOnStateChange registers a transition callback. It runs with the
// breaker locked and must not call back into it.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithIsFailure overrides which errors count against the dependency.
func WithIsFailure(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.isFailure = fn
		}
	}
}

// countsAsFailure ignores calls the caller itself abandoned.
func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker guards calls to one dependency. It is safe for concurrent use.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a closed breaker: 5 failures open it for 30s, then one probe decides.
func New(name string, opts ...Option) *CircuitBreaker {
	o := options{
		threshold: 5,
		cooldown:  30 * time.Second,
		probes:    1,
		isFailure: countsAsFailure,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		MaxRequests:   o.probes,
		Timeout:       o.cooldown,
		ReadyToTrip:   func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= o.threshold },
		OnStateChange: o.onChange,
		IsSuccessful:  func(err error) bool { return !o.isFailure(err) },
	})}
}

// Execute runs fn unless the breaker rejects it, and records the outcome.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the current state. An open breaker whose cooldown has ended
// reports half-open.
func (b *CircuitBreaker) State() State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.cb.Name()
}

// CacheBreaker returns the breaker used in front of the account cache.
func CacheBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("redis-cache",
		WithFailureThreshold(3),
		WithOpenTimeout(15*time.Second),
		WithProbes(1),
		WithOnStateChange(onStateChange),
	)
}
