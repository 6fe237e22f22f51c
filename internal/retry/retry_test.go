package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsImmediately(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Poll(context.Background(), time.Hour, time.Hour, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "condition must be checked before the first sleep")
}

func TestPoll_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPoll_TerminatesWithinDeadlinePlusInterval(t *testing.T) {
	t.Parallel()
	interval := 20 * time.Millisecond
	deadline := 100 * time.Millisecond

	start := time.Now()
	err := Poll(context.Background(), interval, deadline, func(context.Context) (bool, error) {
		return false, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, deadline)
	assert.Less(t, elapsed, deadline+2*interval, "poll must stop within deadline + interval")
}

func TestPoll_ReportsLastConditionError(t *testing.T) {
	t.Parallel()
	err := Poll(context.Background(), time.Millisecond, 5*time.Millisecond, func(context.Context) (bool, error) {
		return false, errors.New("api server not responding")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Contains(t, err.Error(), "api server not responding")
}

func TestPoll_FatalErrorStopsImmediately(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Poll(context.Background(), time.Millisecond, time.Second, func(context.Context) (bool, error) {
		calls++
		return false, Fatal(errors.New("bad credentials"))
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestPoll_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, 10*time.Millisecond, time.Hour, func(context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollAttempts_RespectsAttemptCap(t *testing.T) {
	t.Parallel()
	calls := 0
	err := PollAttempts(context.Background(), time.Millisecond, 4, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, 4, calls)
}

func TestPollAttempts_SucceedsOnLastAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	err := PollAttempts(context.Background(), time.Millisecond, 3, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoff_Success(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithExponentialBackoff_RetriesTransient(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithInitialDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithExponentialBackoff_FatalNotRetried(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := WithExponentialBackoff(context.Background(), func() error {
		attempts++
		return Fatal(errors.New("boom"))
	}, WithInitialDelay(time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	assert.False(t, IsFatal(errors.New("plain")))
	assert.True(t, IsFatal(Fatal(errors.New("wrapped"))))
	assert.Nil(t, Fatal(nil))
}
