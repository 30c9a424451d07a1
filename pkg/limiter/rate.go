package limiter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/canopy-go/pkg/failure"
	"github.com/rohmanhakim/canopy-go/pkg/timeutil"
)

// RateLimiter
// Specialized component to manage rate limiting during crawling
// Responsibilities:
//   - Bookkeep each hostname's last fetch timestamp
//   - Compute the final delay for each hostname given various factors
//   - Make sure the crawling process respect the server's policy
//   - Gate per-host concurrency and adapt the per-host delay to observed
//     response behavior (429/5xx/slow/fast)
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	SetJitter(jitter time.Duration)
	SetRandomSeed(randomSeed int64)
	SetBackoffParam(param timeutil.BackoffParam)
	SetCrawlDelay(host string, delay time.Duration)
	Backoff(host string)
	ResetBackoff(host string)
	MarkLastFetchAsNow(host string)
	SetRNG(rng interface{})
	ResolveDelay(host string) time.Duration

	SetDefaultDelay(delay time.Duration)
	SetMaxConcurrentPerHost(n int)
	Wait(ctx context.Context, host string) error
	RequestCompleted(host string, responseTime time.Duration, status int)
}

type ConcurrentRateLimiter struct {
	mu                sync.RWMutex
	rngMu             sync.Mutex
	baseDelay         time.Duration
	jitter            time.Duration
	defaultDelay      time.Duration
	maxConcurrentHost int
	backoffParam      timeutil.BackoffParam
	hostTimings       map[string]hostTiming
	rng               *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings:       make(map[string]hostTiming),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		backoffParam:      timeutil.NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
		maxConcurrentHost: 1,
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// SetBackoffParam replaces the exponential backoff curve used by Backoff.
func (r *ConcurrentRateLimiter) SetBackoffParam(param timeutil.BackoffParam) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backoffParam = param
}

// SetDefaultDelay sets the floor delay that adaptive adjustment will not
// shrink below (see RequestCompleted's fast-response case).
func (r *ConcurrentRateLimiter) SetDefaultDelay(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultDelay = delay
}

// SetMaxConcurrentPerHost bounds the number of in-flight requests Wait will
// admit for a single host.
func (r *ConcurrentRateLimiter) SetMaxConcurrentPerHost(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.maxConcurrentHost = n
}

// Set delay to given host, separated from global base delay
func (r *ConcurrentRateLimiter) SetCrawlDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.crawlDelay = delay
		r.hostTimings[host] = currentHostTiming
	} else {
		r.hostTimings[host] = hostTiming{
			crawlDelay: delay,
		}
	}
}

// exponentialBackoffDelay computes exponential backoff based on count
// Does NOT take lock; caller must hold r.mu (RLock or Lock)
func (r *ConcurrentRateLimiter) exponentialBackoffDelay(backoffCount int) time.Duration {
	delay := timeutil.ExponentialBackoffDelay(backoffCount, failure.KindUnknown, false, nil, r.backoffParam)

	delay += r.computeJitter(r.jitter)

	return delay
}

// Backoff triggers exponential backoff for the given host.
// It increments the backoff counter and computes the delay.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount++
		currentHostTiming.backoffDelay = r.exponentialBackoffDelay(currentHostTiming.backoffCount)
		r.hostTimings[host] = currentHostTiming
	} else {
		// Initialize with backoffCount=1
		r.hostTimings[host] = hostTiming{
			backoffCount: 1,
			backoffDelay: r.exponentialBackoffDelay(1),
		}
	}
}

// ResetBackoff resets the backoff counter for the given host.
// Called after a successful request to clear backoff state.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.backoffCount = 0
		currentHostTiming.backoffDelay = time.Duration(0)
		r.hostTimings[host] = currentHostTiming
	}
}

// Mark the given host lastFetch to time.Now()
func (r *ConcurrentRateLimiter) MarkLastFetchAsNow(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	currentHostTiming, exists := r.hostTimings[host]
	if exists {
		currentHostTiming.lastFetchAt = time.Now()
		r.hostTimings[host] = currentHostTiming
	} else {
		r.hostTimings[host] = hostTiming{
			lastFetchAt: time.Now(),
		}
	}
}

// Compute jitter for the given max duration
// Returns a pseudo-random duration between 0 and max (inclusive)
func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if max <= 0 {
		return 0
	}

	// Safe to call Int63n under lock since we hold rngMu
	return time.Duration(r.rng.Int63n(int64(max)))
}

// SetRNG allows injecting a custom random number generator for testing
func (r *ConcurrentRateLimiter) SetRNG(rng interface{}) {
	if randImpl, ok := rng.(*rand.Rand); ok {
		r.rngMu.Lock()
		r.rng = randImpl
		r.rngMu.Unlock()
	}
}

// Compute the final delay resolution for given host
// FinalDelay = max(BaseDelay, crawlDelay, BackoffDelay, AdaptiveDelay) + Jitter
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	// copy needed state under read lock, then compute without holding r.mu
	r.mu.RLock()
	currentHostTiming, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	// return no delay if the host not registered yet
	if !exists {
		return time.Duration(0)
	}

	finalDelay := timeutil.MaxDuration(base, currentHostTiming.crawlDelay)
	finalDelay = timeutil.MaxDuration(finalDelay, currentHostTiming.backoffDelay)
	finalDelay = timeutil.MaxDuration(finalDelay, currentHostTiming.adaptiveDelay)

	// add jitter to the final delay (computeJitter protects rng)
	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(currentHostTiming.lastFetchAt)

	// return the remaining time since the host last been fetched,
	// else don't delay
	if elapsed < finalDelay {
		return finalDelay - elapsed
	}

	return time.Duration(0)
}

// Wait blocks until host's active-request count is below the configured
// ceiling and the elapsed time since the last dispatch is at least the
// current resolved delay, then records the dispatch and admits the caller.
func (r *ConcurrentRateLimiter) Wait(ctx context.Context, host string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.mu.Lock()
		timing := r.hostTimings[host]
		maxConcurrent := r.maxConcurrentHost
		if timing.activeRequests < maxConcurrent {
			delay := timeutil.MaxDuration(r.baseDelay, timing.crawlDelay)
			delay = timeutil.MaxDuration(delay, timing.backoffDelay)
			delay = timeutil.MaxDuration(delay, timing.adaptiveDelay)
			elapsed := time.Since(timing.lastFetchAt)
			if elapsed >= delay {
				timing.activeRequests++
				timing.lastFetchAt = time.Now()
				r.hostTimings[host] = timing
				r.mu.Unlock()
				return nil
			}
		}
		r.mu.Unlock()

		// poll: the crawler's scale makes a short sleep cheaper than wiring
		// a per-host wakeup channel for every delay source that mutates
		// independently (backoff, crawl delay, adaptive delay).
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// RequestCompleted decrements the active-request counter for host and
// adaptively adjusts its delay based on the observed outcome:
//
//	429                     -> delay *= 2
//	5xx                     -> delay *= 1.5
//	responseTime > 10s      -> delay *= 1.2
//	200 && responseTime<2s  -> delay = max(defaultDelay, delay*0.95)
//
// The backoff multipliers scale the currently EFFECTIVE delay (the max
// of base, robots crawl-delay, backoff, and adaptive delay), not just
// the adaptive component: when a robots crawl-delay already dominates,
// a 429 must still at least double what Wait actually enforces. The
// shrink case only relaxes the adaptive component, so it can never
// undercut the base or robots-mandated delay.
//
// No upper bound is imposed here; the circuit breaker is the hard cut-off.
func (r *ConcurrentRateLimiter) RequestCompleted(host string, responseTime time.Duration, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing, exists := r.hostTimings[host]
	if !exists {
		timing = hostTiming{}
	}
	if timing.activeRequests > 0 {
		timing.activeRequests--
	}

	current := timing.adaptiveDelay
	if current == 0 {
		current = r.defaultDelay
	}

	effective := timeutil.MaxDuration(r.baseDelay, timing.crawlDelay)
	effective = timeutil.MaxDuration(effective, timing.backoffDelay)
	effective = timeutil.MaxDuration(effective, current)

	switch {
	case status == 429:
		current = time.Duration(float64(effective) * 2)
	case status >= 500 && status < 600:
		current = time.Duration(float64(effective) * 1.5)
	case responseTime > 10*time.Second:
		current = time.Duration(float64(effective) * 1.2)
	case status == 200 && responseTime < 2*time.Second:
		shrunk := time.Duration(float64(current) * 0.95)
		current = timeutil.MaxDuration(r.defaultDelay, shrunk)
	}

	timing.adaptiveDelay = current
	r.hostTimings[host] = timing
}

func (r *ConcurrentRateLimiter) BaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

func (r *ConcurrentRateLimiter) Jitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jitter
}

func (r *ConcurrentRateLimiter) RNG() *rand.Rand {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng
}

func (r *ConcurrentRateLimiter) HostTimings() map[string]hostTiming {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// return a shallow copy to avoid exposing internal map for mutation
	copyMap := make(map[string]hostTiming, len(r.hostTimings))
	for k, v := range r.hostTimings {
		copyMap[k] = v
	}
	return copyMap
}
