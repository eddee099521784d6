package retry

import (
	"math"
	"time"
)

// Policy controls the retry loop: how many re-attempts are allowed and
// how the inter-attempt delay grows. Policies are values; the presets
// below are constants in all but syntax.
type Policy struct {
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps every computed delay.
	MaxDelay time.Duration
	// Multiplier is the growth factor applied per retry.
	Multiplier float64
}

// DefaultPolicy suits most transient network failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}
}

// AggressivePolicy retries more, sooner. For short interactive calls
// where giving up early is worse than extra load.
func AggressivePolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 1.5,
	}
}

// ConservativePolicy backs off hard. For background work that can
// afford to wait out an outage.
func ConservativePolicy() Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 3.0,
	}
}

// DelayForAttempt returns the backoff before retry n. Counting is
// 1-based: the first retry waits BaseDelay, each later one grows by
// Multiplier. The result saturates at MaxDelay and never overflows.
func (p Policy) DelayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) || delay < 0 || math.IsInf(delay, 1) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
