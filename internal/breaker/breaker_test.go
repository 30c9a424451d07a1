package breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/canopy-go/internal/breaker"
)

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	registry := breaker.NewRegistry(breaker.DefaultConfig(), nil)

	calls := 0
	err := registry.Execute("a.test", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, registry.State("a.test"))
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Minute}, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := registry.Execute("a.test", func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, registry.State("a.test"))

	calls := 0
	err := registry.Execute("a.test", func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 0, calls, "an open breaker must fail fast without invoking fn")
}

func TestExecute_HalfOpenProbeRecovers(t *testing.T) {
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond}, nil)

	require.Error(t, registry.Execute("a.test", func() error { return errors.New("boom") }))
	assert.Equal(t, gobreaker.StateOpen, registry.State("a.test"))

	time.Sleep(50 * time.Millisecond)

	err := registry.Execute("a.test", func() error { return nil })
	require.NoError(t, err, "the half-open probe must be allowed through")
	assert.Equal(t, gobreaker.StateClosed, registry.State("a.test"))
}

func TestExecute_HostsAreIndependent(t *testing.T) {
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil)

	require.Error(t, registry.Execute("down.test", func() error { return errors.New("boom") }))
	assert.Equal(t, gobreaker.StateOpen, registry.State("down.test"))

	err := registry.Execute("up.test", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, registry.State("up.test"))
}
