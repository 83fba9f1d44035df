package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/types"
)

func testBreakerConfig() types.CircuitBreakerConfig {
	return types.CircuitBreakerConfig{
		FailureThreshold:    3,
		RecoveryTimeout:     20 * time.Millisecond,
		MinRequestThreshold: 3,
		ErrorRateThreshold:  0.5,
	}
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(testBreakerConfig())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, types.CircuitClosed, b.State())
	require.NoError(t, b.Allow())
	b.RecordFailure()

	require.Equal(t, types.CircuitOpen, b.State())
	require.Error(t, b.Allow())
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cfg := testBreakerConfig()
	b := NewCircuitBreaker(cfg)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	require.Equal(t, types.CircuitOpen, b.State())

	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, types.CircuitHalfOpen, b.State())

	b.RecordSuccess()
	require.Equal(t, types.CircuitClosed, b.State())
	require.NoError(t, b.Allow())
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cfg := testBreakerConfig()
	b := NewCircuitBreaker(cfg)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, types.CircuitHalfOpen, b.State())

	b.RecordFailure()
	require.Equal(t, types.CircuitOpen, b.State())
	require.Error(t, b.Allow())
}

func TestCircuitBreakerHalfOpenRejectsConcurrentProbes(t *testing.T) {
	cfg := testBreakerConfig()
	b := NewCircuitBreaker(cfg)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	time.Sleep(cfg.RecoveryTimeout + 5*time.Millisecond)

	require.NoError(t, b.Allow())
	require.Error(t, b.Allow())
}
