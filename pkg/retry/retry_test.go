package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(opts ...Option) []Option {
	return append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}, opts...)
}

func TestDo_RetriesRetryable(t *testing.T) {
	calls := 0
	var retried []int
	cause := errors.New("temporary")

	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(cause)
		}
		return nil
	}, fast(WithMaxAttempts(5), WithOnRetry(func(attempt int, err error, _ time.Duration) {
		retried = append(retried, attempt)
		assert.Equal(t, cause, err)
	}))...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_PlainErrorIsNotRetried(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, fast()...)

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStops(t *testing.T) {
	calls := 0
	cause := errors.New("forbidden")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	}, fast(WithRetryIf(func(error) bool { return true }))...)

	assert.Equal(t, cause, err, "marker is removed")
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("timeout")
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(cause)
	}, fast(WithMaxAttempts(4))...)

	assert.Equal(t, cause, err)
	assert.Equal(t, 4, calls)
	assert.False(t, IsRetryable(err))
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errors.New("again"))
		}
		return 42, nil
	}, fast()...)

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDelay_Capped(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(25*time.Millisecond), WithMultiplier(2), WithJitter(0))
	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 25*time.Millisecond, r.delay(3))
}
