package throttle

import (
	"context"
	"log"
	"time"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// DefaultMaxAttempts is the total number of tries an item gets: the first
// attempt plus three retries.
const DefaultMaxAttempts = 4

// DeadlockRetryPolicy bounds retries of operations that failed on lock
// contention. Failures that Retryable rejects are never retried.
type DeadlockRetryPolicy struct {
	MaxAttempts int
	Retryable   func(error) bool
	// Delay is multiplied by the attempt number before each retry.
	Delay time.Duration
}

func (p DeadlockRetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p DeadlockRetryPolicy) retryable(err error) bool {
	return p.Retryable != nil && p.Retryable(err)
}

// RetryOnDeadlock runs op until it succeeds, fails with a non-retryable error,
// or has been attempted MaxAttempts times. In the last case the final error is
// wrapped in a RetryExhaustedError.
func (p DeadlockRetryPolicy) RetryOnDeadlock(ctx context.Context, op func(ctx context.Context) error) error {
	max := p.maxAttempts()
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
		if attempt < max {
			log.Printf("⚠️ Lock contention (attempt %d/%d), retrying: %v", attempt, max, err)
			if werr := p.wait(ctx, attempt); werr != nil {
				return werr
			}
		}
	}
	return apperrors.NewRetryExhaustedError(max, err)
}

func (p DeadlockRetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(p.Delay * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt tracks how many times a queued item has been tried.
type Attempt[T any] struct {
	Item     T
	Attempts int
}

// RunWithRetry works like Run, except that items failing with a retryable
// error are put back at the tail of the queue until they have been tried
// policy.MaxAttempts times. Exhausted items are reported once through onError
// with a RetryExhaustedError; other failures are reported immediately.
func RunWithRetry[T any](ctx context.Context, items []T, parallelism int, policy DeadlockRetryPolicy, op Op[T], onError ErrorFunc[T]) {
	if onError == nil {
		onError = func(error, T) {}
	}
	max := policy.maxAttempts()
	queue := make([]*Attempt[T], 0, len(items))
	for _, item := range items {
		queue = append(queue, &Attempt[T]{Item: item})
	}

	for round := 1; len(queue) > 0; round++ {
		var requeue []*Attempt[T]
		Run(ctx, queue, parallelism,
			func(ctx context.Context, a *Attempt[T]) error {
				a.Attempts++
				return op(ctx, a.Item)
			},
			func(err error, a *Attempt[T]) {
				switch {
				case !policy.retryable(err):
					onError(err, a.Item)
				case a.Attempts >= max:
					onError(apperrors.NewRetryExhaustedError(a.Attempts, err), a.Item)
				default:
					requeue = append(requeue, a)
				}
			})

		if len(requeue) > 0 {
			log.Printf("⚠️ %d item(s) hit lock contention, re-queueing (round %d)", len(requeue), round)
			if err := policy.wait(ctx, round); err != nil {
				for _, a := range requeue {
					onError(err, a.Item)
				}
				return
			}
		}
		queue = requeue
	}
}
