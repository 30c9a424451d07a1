// Package breaker guards each host behind its own circuit breaker
// (closed/open/half-open), so a misbehaving host can't stall the whole
// crawl with retried timeouts. Built on github.com/sony/gobreaker rather
// than a hand-rolled state machine.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOpen is returned by Execute when a host's breaker is open.
var ErrOpen = errors.New("breaker: circuit open")

// Config tunes every per-host breaker the Registry creates.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips a
	// closed breaker to open.
	FailureThreshold uint32
	// RecoveryTimeout is how long a breaker stays open before allowing
	// one trial request through (half-open).
	RecoveryTimeout time.Duration
}

// DefaultConfig trips after 5 consecutive failures and probes again
// after 60 seconds.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second}
}

// Registry hands out one gobreaker.CircuitBreaker per host, created
// lazily on first use and kept for the life of the crawl.
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	byHost map[string]*gobreaker.CircuitBreaker
}

// NewRegistry builds a Registry using cfg for every host's breaker.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{cfg: cfg, logger: logger, byHost: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *Registry) forHost(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.byHost[host]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:    host,
		Timeout: r.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	r.byHost[host] = cb
	return cb
}

// Execute runs fn through host's breaker, tripping it closed-to-open on
// repeated failures and rejecting calls outright while open.
func (r *Registry) Execute(host string, fn func() error) error {
	cb := r.forHost(host)
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State reports host's current breaker state, mainly for metrics/reporting.
func (r *Registry) State(host string) gobreaker.State {
	return r.forHost(host).State()
}

// States snapshots every tracked host's breaker state for the final
// report.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.byHost))
	for host, cb := range r.byHost {
		out[host] = cb.State().String()
	}
	return out
}
