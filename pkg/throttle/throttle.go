// Package throttle drives queues of schema changes with bounded fan-out.
//
// Run never fails as a whole: every item is attempted, and per-item failures
// are handed to the caller's onError callback. RunWithRetry adds the lock
// retry policy on top, re-queueing deadlocked items at the tail of the queue.
package throttle

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Op applies a single item.
type Op[T any] func(ctx context.Context, item T) error

// ErrorFunc receives a failed item. Calls are serialized by the throttler.
type ErrorFunc[T any] func(err error, item T)

// Run applies op to every item with at most parallelism items in flight and
// returns once the queue has drained. A parallelism below 1 is treated as 1.
func Run[T any](ctx context.Context, items []T, parallelism int, op Op[T], onError ErrorFunc[T]) {
	if len(items) == 0 {
		return
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(parallelism)

	report := func(err error, item T) {
		if onError == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onError(err, item)
	}

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := safeApply(ctx, op, item); err != nil {
				report(err, item)
			}
			// The group never sees an error, so one failure cannot stop the rest.
			return nil
		})
	}
	_ = g.Wait()
}

func safeApply[T any](ctx context.Context, op Op[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ throttle: panic while applying item: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, item)
}
