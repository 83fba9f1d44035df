package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceControllerPredictNeedsEmpty(t *testing.T) {
	rc := NewResourceController()
	needs := rc.PredictResourceNeeds()
	require.Equal(t, 0.0, needs["cpu"])
	require.Equal(t, 0.0, needs["memory"])
	require.Equal(t, 0.0, needs["storage"])
}

func TestResourceControllerPredictNeedsReflectsSpike(t *testing.T) {
	rc := NewResourceController()
	for i := 0; i < 5; i++ {
		rc.Observe(10, 100, 1)
	}
	rc.Observe(90, 100, 1)

	needs := rc.PredictResourceNeeds()
	require.Greater(t, needs["cpu"], 1.0)
}

func TestResourceControllerScalingHints(t *testing.T) {
	rc := NewResourceController()
	rc.RegisterPermits("embedding", func() (int64, int64) { return 9, 10 })
	rc.RegisterPermits("search", func() (int64, int64) { return 1, 10 })
	rc.RegisterPermits("health", func() (int64, int64) { return 5, 10 })

	hints := rc.ScalingHints()
	require.Equal(t, HintScaleUp, hints["embedding"])
	require.Equal(t, HintScaleDown, hints["search"])
	require.Equal(t, HintSteady, hints["health"])
}
