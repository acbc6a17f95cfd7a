// Package performance runs I/O-bound per-symbol work on a bounded pool and
// tracks how recommended candidates performed afterwards.
package performance

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// FetchResult holds the merged output of a fan-out. Values and Errors never
// share a key.
type FetchResult[T any] struct {
	Values   map[string]T
	Errors   map[string]error
	Skipped  []string // not dispatched because the context ended
	Duration time.Duration
}

// Failed returns the number of keys that errored.
func (r FetchResult[T]) Failed() int {
	return len(r.Errors)
}

type slot[T any] struct {
	value T
	err   error
	done  bool
}

// FetchAll calls fetch for every key with at most workers in flight. Each
// task writes only its own slot; slots are merged after the pool drains, so
// one key's failure never affects another. Once ctx is done no further keys
// are dispatched.
func FetchAll[T any](ctx context.Context, workers int, keys []string, fetch func(ctx context.Context, key string) (T, error)) FetchResult[T] {
	start := time.Now()
	if workers <= 0 {
		workers = 1
	}

	slots := make([]slot[T], len(keys))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)

	dispatched := 0
	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}
		i, key := i, key
		dispatched++
		p.Go(func(ctx context.Context) error {
			v, err := fetch(ctx, key)
			slots[i] = slot[T]{value: v, err: err, done: true}
			return nil
		})
	}
	_ = p.Wait()

	result := FetchResult[T]{
		Values: make(map[string]T, len(keys)),
		Errors: make(map[string]error),
	}
	for i, key := range keys {
		s := slots[i]
		switch {
		case i >= dispatched || !s.done:
			result.Skipped = append(result.Skipped, key)
		case s.err != nil:
			result.Errors[key] = s.err
		default:
			result.Values[key] = s.value
		}
	}
	result.Duration = time.Since(start)
	return result
}
