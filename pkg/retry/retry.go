// Package retry implements the policy-driven backoff engine for
// network operations. Failures classify through the error taxonomy;
// the retryability of the resulting kind, not the caller, decides
// whether the loop continues.
package retry

import (
	"context"
	"time"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// Operation is one fallible attempt. The engine re-invokes it until it
// succeeds, fails non-retryably, or exhausts the policy.
type Operation[T any] func(ctx context.Context) (T, error)

// HTTPOperation additionally reports the HTTP status code so non-2xx
// responses classify through the taxonomy. status is 0 when the
// transport itself failed.
type HTTPOperation[T any] func(ctx context.Context) (value T, status int, err error)

// OfflineChecker is the connectivity surface DoHTTP consults before
// touching the network. Only a known-offline answer short-circuits;
// an unknown status lets the attempt proceed. *netmon.Monitor
// satisfies it.
type OfflineChecker interface {
	Offline() bool
}

// Outcome is the result envelope. It is always produced: terminal
// failures land in Err rather than propagating, so callers can always
// inspect how many attempts were spent.
type Outcome[T any] struct {
	Value      T
	Err        *errsys.Error
	Attempts   int // Invocations made, including the first
	RetryCount int // Invocations beyond the first
	Elapsed    time.Duration
}

// IsSuccess reports whether the operation eventually succeeded.
func (o Outcome[T]) IsSuccess() bool {
	return o.Err == nil
}

// Do runs op under the policy: up to MaxRetries+1 invocations, with
// DelayForAttempt(n) between them. A non-retryable failure stops the
// loop at once. The inter-attempt delay is not interruptible; a
// started loop runs to its terminal state.
func Do[T any](ctx context.Context, policy Policy, op Operation[T]) Outcome[T] {
	start := time.Now()
	var out Outcome[T]

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		out.Attempts++
		v, err := op(ctx)
		if err == nil {
			out.Value = v
			out.Err = nil
			return out.finish(start)
		}
		out.Err = errsys.Classify(err)
		if !out.Err.Retryable() || attempt == policy.MaxRetries {
			break
		}
		time.Sleep(policy.DelayForAttempt(attempt + 1))
	}

	return out.finish(start)
}

// DoHTTP runs an HTTP operation under the policy. When the monitor
// reports the device offline the loop short-circuits with an Offline
// failure before any network attempt; non-2xx statuses classify via
// the taxonomy and follow the normal retry decision.
func DoHTTP[T any](ctx context.Context, policy Policy, net OfflineChecker, op HTTPOperation[T]) Outcome[T] {
	start := time.Now()
	var out Outcome[T]

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if net != nil && net.Offline() {
			out.Err = errsys.E(errsys.KindOffline)
			break
		}

		out.Attempts++
		v, status, err := op(ctx)
		switch {
		case err != nil:
			out.Err = errsys.Classify(err)
		default:
			httpErr := errsys.FromHTTPStatus(status)
			if httpErr == nil {
				out.Value = v
				out.Err = nil
				return out.finish(start)
			}
			out.Err = httpErr
		}

		if !out.Err.Retryable() || attempt == policy.MaxRetries {
			break
		}
		time.Sleep(policy.DelayForAttempt(attempt + 1))
	}

	return out.finish(start)
}

func (o Outcome[T]) finish(start time.Time) Outcome[T] {
	if o.Attempts > 0 {
		o.RetryCount = o.Attempts - 1
	}
	o.Elapsed = time.Since(start)
	return o
}
