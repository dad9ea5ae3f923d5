package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("api down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New("test",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithTimeout(time.Minute),
		WithMaxHalfOpenRequests(2),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	counts := cb.Counts()
	assert.Equal(t, 5, counts.Requests)
	assert.Equal(t, 3, counts.TotalFailures)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	blocked := errors.New("forbidden: bot was blocked by the user")
	cb := ForTelegram(func(err error) bool { return !errors.Is(err, blocked) }, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return blocked })
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "telegram-api", cb.Name())

	cb.Reset()
	assert.Zero(t, cb.Counts().Requests)
}
