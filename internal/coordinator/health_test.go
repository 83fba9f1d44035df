package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/types"
)

func TestHealthManagerAggregatesOverallHealthy(t *testing.T) {
	hm := NewHealthManager(0)
	hm.Register("embedding", func() types.CoordinatorHealth {
		return types.CoordinatorHealth{IsReady: true, CircuitState: types.CircuitClosed}
	})
	hm.Register("search", func() types.CoordinatorHealth {
		return types.CoordinatorHealth{IsReady: true, CircuitState: types.CircuitClosed}
	})

	sys := hm.CheckSystemHealth()
	require.True(t, sys.OverallHealthy)
	require.Len(t, sys.Components, 2)
	require.Empty(t, sys.Alerts)
}

func TestHealthManagerFlagsUnhealthyComponent(t *testing.T) {
	hm := NewHealthManager(0)
	hm.Register("search", func() types.CoordinatorHealth {
		return types.CoordinatorHealth{IsReady: false, CircuitState: types.CircuitOpen}
	})

	sys := hm.CheckSystemHealth()
	require.False(t, sys.OverallHealthy)
}

func TestHealthManagerRaisesAlertOnTransition(t *testing.T) {
	hm := NewHealthManager(0)
	healthy := true
	hm.Register("search", func() types.CoordinatorHealth {
		if healthy {
			return types.CoordinatorHealth{IsReady: true, CircuitState: types.CircuitClosed}
		}
		return types.CoordinatorHealth{IsReady: false, CircuitState: types.CircuitOpen}
	})

	sys := hm.CheckSystemHealth()
	require.Empty(t, sys.Alerts)

	healthy = false
	sys = hm.CheckSystemHealth()
	require.Len(t, sys.Alerts, 1)
	require.Equal(t, "search", sys.Alerts[0].Component)
}

func TestHealthManagerSLAWindowViolation(t *testing.T) {
	hm := NewHealthManager(10)
	slow := true
	hm.Register("search", func() types.CoordinatorHealth {
		rt := 1.0
		if slow {
			rt = 50.0
		}
		return types.CoordinatorHealth{IsReady: true, CircuitState: types.CircuitClosed, ResponseTimeMS: rt}
	})

	var sys types.SystemHealth
	for i := 0; i < slaWindowSize; i++ {
		sys = hm.CheckSystemHealth()
	}
	require.NotEmpty(t, sys.Alerts)
}
