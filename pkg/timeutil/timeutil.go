package timeutil

import (
	"math"
	"math/rand"
	"time"

	"github.com/rohmanhakim/canopy-go/pkg/failure"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the larger of two durations.
func MaxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// ExponentialBackoffDelay computes the delay before the next retry attempt,
// per the backoff formula: delay ← min(maxDelay, baseDelay × base^(attempt-1)),
// with an extra ×2 when the failing error is a rate-limit (429) response.
// When jitterEnabled, a uniform [0, 0.1·delay] component is added on top of
// the capped delay, so the returned value may exceed maxDuration slightly.
func ExponentialBackoffDelay(
	attempt int,
	kind failure.ErrorKind,
	jitterEnabled bool,
	rng *rand.Rand,
	param BackoffParam,
) time.Duration {
	raw := float64(param.initialDuration) * math.Pow(param.multiplier, float64(attempt-1))
	delay := time.Duration(raw)
	if delay > param.maxDuration {
		delay = param.maxDuration
	}

	if kind == failure.KindRateLimited {
		delay *= 2
	}

	if jitterEnabled && delay > 0 {
		jitter := time.Duration(rng.Float64() * 0.1 * float64(delay))
		delay += jitter
	}

	return delay
}
