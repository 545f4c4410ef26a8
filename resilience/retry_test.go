package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyError struct{ n int }

func (e *flakyError) Error() string { return "flaky" }

// failing returns a function that fails k times with *flakyError, then succeeds.
func failing(k int) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= k {
			return "", &flakyError{n: calls}
		}
		return "ok", nil
	}, &calls
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDo_SucceedsAfterKFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		fn, calls := failing(k)
		got, err := Do(context.Background(), fastPolicy(k+1), fn)
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, "ok", got)
		assert.Equal(t, k+1, *calls, "k=%d", k)
	}
}

func TestDo_ExhaustedReturnsOriginalError(t *testing.T) {
	for _, attempts := range []int{1, 2, 3} {
		fn, calls := failing(3)
		_, err := Do(context.Background(), fastPolicy(attempts), fn)
		require.Error(t, err)

		var fe *flakyError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, attempts, fe.n, "last error is returned")
		assert.Equal(t, attempts, *calls)
	}
}

func TestRetry_NoWaitAfterFinalAttempt(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		waits = append(waits, wait)
	}

	err := Retry(context.Background(), p, func(context.Context) error { return errors.New("x") })
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad input")
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsPermanent(err))
	assert.Nil(t, Permanent(nil))
}

func TestRetry_RetryableFilter(t *testing.T) {
	p := fastPolicy(5)
	p.Retryable = func(err error) bool { return err.Error() == "transient" }

	calls := 0
	err := Retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return errors.New("fatal")
	})
	assert.EqualError(t, err, "fatal")
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	boom := errors.New("boom")
	start := time.Now()
	err := Retry(ctx, p, func(context.Context) error { return boom })

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
	want := []time.Duration{2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		assert.Equal(t, w*time.Second, p.Backoff(i), "attempt %d", i)
	}

	uncapped := Policy{BaseDelay: time.Second}
	assert.Equal(t, 1024*time.Second, uncapped.Backoff(10))
	assert.Positive(t, uncapped.Backoff(200))

	assert.Equal(t, DefaultPolicy().Backoff(0), 2*time.Second)
}
