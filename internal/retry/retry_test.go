package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimited = errors.New("429 too many requests")

func isRateLimited(err error) bool {
	return errors.Is(err, errRateLimited)
}

// recordingSleeper captures requested waits without blocking.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func testPolicy(s *recordingSleeper, maxAttempts int) Policy {
	return Policy{
		Name:             "test",
		MaxAttempts:      maxAttempts,
		RateLimitBackoff: 10 * time.Second,
		TransientDelay:   5 * time.Second,
		IsRateLimited:    isRateLimited,
		Sleep:            s.sleep,
	}
}

func TestDo_RateLimitedThenSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	result, err := Do(context.Background(), testPolicy(sleeper, 4), func(context.Context) (string, error) {
		calls++
		if calls <= 3 {
			return "", errRateLimited
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}, sleeper.waits)
	for i := 1; i < len(sleeper.waits); i++ {
		assert.Greater(t, sleeper.waits[i], sleeper.waits[i-1], "backoff strictly increases")
	}
}

func TestDo_TransientErrorUsesFixedDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(sleeper, 3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeper.waits)
}

func TestDo_Exhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	last := errors.New("third failure")
	calls := 0

	_, err := Do(context.Background(), testPolicy(sleeper, 3), func(context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, last
		}
		return 0, errRateLimited
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
	assert.Len(t, sleeper.waits, 2, "no wait after the final attempt")
	assert.Contains(t, err.Error(), "test: gave up after 3 attempts")
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sleeper := &recordingSleeper{}
	cause := errors.New("401 unauthorized")
	calls := 0

	_, err := Do(context.Background(), testPolicy(sleeper, 5), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, err)
	assert.Empty(t, sleeper.waits)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	_, err := Do(context.Background(), testPolicy(sleeper, 0), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryHook(t *testing.T) {
	sleeper := &recordingSleeper{}
	var attempts []int
	policy := testPolicy(sleeper, 3)
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	_, _ = Do(context.Background(), policy, func(context.Context) (int, error) {
		return 0, errRateLimited
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Policy{MaxAttempts: 3, TransientDelay: time.Hour}

	_, err := Do(ctx, policy, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPolicies(t *testing.T) {
	bulk := BulkPolicy()
	assert.Equal(t, 10*time.Second, bulk.RateLimitBackoff)
	assert.Equal(t, 5*time.Second, bulk.TransientDelay)

	chapter := ChapterPolicy()
	assert.Equal(t, 30*time.Second, chapter.RateLimitBackoff)
	assert.Equal(t, 3, chapter.MaxAttempts)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.NoError(t, Permanent(nil))
}
