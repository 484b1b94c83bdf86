package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

const cooldown = 20 * time.Millisecond

// waitHalfOpen blocks until the cooldown of an open breaker has ended.
func waitHalfOpen(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	require.Eventually(t, func() bool { return cb.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithOpenTimeout(time.Hour),
		WithOnStateChange(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, IsRejection(errDown))
	assert.False(t, called)
	assert.Equal(t, []string{"test:closed->open"}, transitions)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New("test", WithFailureThreshold(2))

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledCallsDoNotCount(t *testing.T) {
	cb := New("test", WithFailureThreshold(1))

	err := cb.Execute(context.Background(), func(context.Context) error {
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithOpenTimeout(cooldown))

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)

	waitHalfOpen(t, cb)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithOpenTimeout(cooldown))

	_ = cb.Execute(context.Background(), fail)
	waitHalfOpen(t, cb)
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestCircuitBreaker_ProbeLimit(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithOpenTimeout(cooldown), WithProbes(1))

	_ = cb.Execute(context.Background(), fail)
	waitHalfOpen(t, cb)

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		// A second call while the probe is still running is rejected.
		inner := cb.Execute(ctx, ok)
		require.ErrorIs(t, inner, ErrProbeLimit)
		assert.True(t, IsRejection(inner))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StaleOutcomeIgnored(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithOpenTimeout(time.Hour))

	// A slow call started while closed finishes after another call tripped the breaker.
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		_ = cb.Execute(ctx, fail)
		require.Equal(t, StateOpen, cb.State())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errDown) }),
	)

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCacheBreaker(t *testing.T) {
	cb := CacheBreaker(nil)
	assert.Equal(t, "redis-cache", cb.Name())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
