package retry

import (
	"context"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// WithTimeout races op against a deadline. The losing side is
// cancelled through its context. A timer win classifies as a timeout,
// which stays retryable when composed with Do.
func WithTimeout[T any](ctx context.Context, d time.Duration, op Operation[T]) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(tctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, errsys.Classify(r.err)
		}
		return r.value, nil
	case <-tctx.Done():
		return zero, errsys.Classify(tctx.Err())
	}
}
