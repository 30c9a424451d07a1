package retry

import (
	"github.com/rohmanhakim/canopy-go/pkg/timeutil"
)

// RetryParam holds the parameters for retry logic.
// These parameters are passed from outside (e.g., config) and should not
// be known by the retry handler internally.
type RetryParam struct {
	JitterEnabled bool
	RandomSeed    int64
	MaxAttempts   int
	BackoffParam  timeutil.BackoffParam
}

// NewRetryParam creates a new RetryParam with the given settings.
func NewRetryParam(
	jitterEnabled bool,
	randomSeed int64,
	maxAttempts int,
	backoffParam timeutil.BackoffParam,
) RetryParam {
	return RetryParam{
		JitterEnabled: jitterEnabled,
		RandomSeed:    randomSeed,
		MaxAttempts:   maxAttempts,
		BackoffParam:  backoffParam,
	}
}
