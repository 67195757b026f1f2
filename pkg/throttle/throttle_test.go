package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AttemptsEveryItemAndCollectsErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var applied []int
	var mu sync.Mutex

	var failed []int
	Run(context.Background(), items, 1, func(_ context.Context, n int) error {
		mu.Lock()
		applied = append(applied, n)
		mu.Unlock()
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	}, func(err error, n int) {
		failed = append(failed, n)
	})

	assert.Equal(t, items, applied, "parallelism 1 keeps queue order")
	assert.Equal(t, []int{2, 4}, failed)
}

func TestRun_RespectsParallelism(t *testing.T) {
	items := make([]int, 20)
	var inFlight, peak int32

	Run(context.Background(), items, 3, func(_ context.Context, _ int) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}, nil)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestRun_RecoversPanics(t *testing.T) {
	var errs []error
	Run(context.Background(), []string{"a", "b"}, 2, func(_ context.Context, s string) error {
		if s == "a" {
			panic("boom")
		}
		return nil
	}, func(err error, _ string) {
		errs = append(errs, err)
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "boom")
}

func TestRun_EmptyQueue(t *testing.T) {
	called := false
	Run(context.Background(), nil, 1, func(context.Context, int) error {
		called = true
		return nil
	}, nil)
	assert.False(t, called)
}

var errDeadlock = errors.New("ER_LOCK_DEADLOCK: Deadlock found when trying to get lock")

func isTestDeadlock(err error) bool { return errors.Is(err, errDeadlock) }

func TestRunWithRetry_SucceedsOnFourthAttempt(t *testing.T) {
	policy := DeadlockRetryPolicy{MaxAttempts: 4, Retryable: isTestDeadlock}
	attempts := map[string]int{}

	var errs []error
	RunWithRetry(context.Background(), []string{"field-a"}, 1, policy, func(_ context.Context, id string) error {
		attempts[id]++
		if attempts[id] <= 3 {
			return errDeadlock
		}
		return nil
	}, func(err error, _ string) {
		errs = append(errs, err)
	})

	assert.Equal(t, 4, attempts["field-a"])
	assert.Empty(t, errs)
}

func TestRunWithRetry_ExhaustedAfterFourAttempts(t *testing.T) {
	policy := DeadlockRetryPolicy{MaxAttempts: 4, Retryable: isTestDeadlock}
	attempts := 0

	var errs []error
	RunWithRetry(context.Background(), []string{"field-a"}, 1, policy, func(context.Context, string) error {
		attempts++
		return errDeadlock
	}, func(err error, _ string) {
		errs = append(errs, err)
	})

	assert.Equal(t, 4, attempts)
	require.Len(t, errs, 1)
	assert.True(t, apperrors.IsRetryExhausted(errs[0]))
	assert.ErrorIs(t, errs[0], errDeadlock)
}

func TestRunWithRetry_NonRetryableReportedImmediately(t *testing.T) {
	policy := DeadlockRetryPolicy{Retryable: isTestDeadlock}
	attempts := 0
	schemaErr := errors.New("unknown column")

	var errs []error
	RunWithRetry(context.Background(), []int{1}, 1, policy, func(context.Context, int) error {
		attempts++
		return schemaErr
	}, func(err error, _ int) {
		errs = append(errs, err)
	})

	assert.Equal(t, 1, attempts)
	require.Len(t, errs, 1)
	assert.Same(t, schemaErr, errs[0])
}

func TestRunWithRetry_RequeuesAtTail(t *testing.T) {
	policy := DeadlockRetryPolicy{Retryable: isTestDeadlock}
	var order []string
	failedOnce := false

	RunWithRetry(context.Background(), []string{"a", "b", "c"}, 1, policy, func(_ context.Context, s string) error {
		order = append(order, s)
		if s == "a" && !failedOnce {
			failedOnce = true
			return errDeadlock
		}
		return nil
	}, nil)

	assert.Equal(t, []string{"a", "b", "c", "a"}, order)
}

func TestRetryOnDeadlock(t *testing.T) {
	policy := DeadlockRetryPolicy{Retryable: isTestDeadlock}

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		err := policy.RetryOnDeadlock(context.Background(), func(context.Context) error {
			calls++
			if calls < 4 {
				return errDeadlock
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 4, calls)
	})

	t.Run("exhausts", func(t *testing.T) {
		calls := 0
		err := policy.RetryOnDeadlock(context.Background(), func(context.Context) error {
			calls++
			return errDeadlock
		})
		assert.True(t, apperrors.IsRetryExhausted(err))
		assert.Equal(t, DefaultMaxAttempts, calls)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		calls := 0
		err := policy.RetryOnDeadlock(context.Background(), func(context.Context) error {
			calls++
			return errors.New("syntax")
		})
		assert.EqualError(t, err, "syntax")
		assert.Equal(t, 1, calls)
	})
}
