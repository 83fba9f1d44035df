package coordinator

import (
	"sync"
	"time"

	"github.com/cortexmem/cortex/internal/types"
)

// ProbeFunc returns a coordinator's current health rollup.
type ProbeFunc func() types.CoordinatorHealth

const slaWindowSize = 20

// HealthManager maintains per-component health rollups and a rolling
// SLA window, raising alerts on unhealthy transitions or sustained
// latency breaches (spec §4.12).
type HealthManager struct {
	mu        sync.Mutex
	startedAt time.Time

	probes      map[string]ProbeFunc
	order       []string
	lastHealthy map[string]bool
	slaWindow   map[string][]float64
	slaTargetMS float64
	alerts      []types.Alert
	maxAlerts   int
}

// NewHealthManager builds a manager with slaTargetMS as the rolling
// average response-time ceiling (<=0 disables the SLA check).
func NewHealthManager(slaTargetMS float64) *HealthManager {
	return &HealthManager{
		startedAt:   time.Now(),
		probes:      make(map[string]ProbeFunc),
		lastHealthy: make(map[string]bool),
		slaWindow:   make(map[string][]float64),
		slaTargetMS: slaTargetMS,
		maxAlerts:   200,
	}
}

// Register adds a coordinator's health probe under name.
func (h *HealthManager) Register(name string, probe ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.probes[name]; !exists {
		h.order = append(h.order, name)
	}
	h.probes[name] = probe
	h.lastHealthy[name] = true
}

func isHealthy(h types.CoordinatorHealth) bool {
	return h.IsReady && h.CircuitState != types.CircuitOpen
}

// CheckSystemHealth polls every registered probe, records transitions,
// and returns the aggregate rollup (spec §4.12).
func (h *HealthManager) CheckSystemHealth() types.SystemHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	components := make([]types.ComponentHealth, 0, len(h.order))
	overall := true

	for _, name := range h.order {
		probe := h.probes[name]
		health := probe()
		components = append(components, types.ComponentHealth{Name: name, Health: health})

		healthy := isHealthy(health)
		if !healthy {
			overall = false
		}
		if wasHealthy := h.lastHealthy[name]; wasHealthy && !healthy {
			h.raiseAlert(name, "component became unhealthy", now)
		}
		h.lastHealthy[name] = healthy

		if h.slaTargetMS > 0 {
			window := append(h.slaWindow[name], health.ResponseTimeMS)
			if len(window) > slaWindowSize {
				window = window[len(window)-slaWindowSize:]
			}
			h.slaWindow[name] = window
			if len(window) == slaWindowSize && average(window) > h.slaTargetMS {
				h.raiseAlert(name, "rolling SLA window violated", now)
			}
		}
	}

	return types.SystemHealth{
		OverallHealthy: overall,
		Components:     components,
		Uptime:         now.Sub(h.startedAt),
		Alerts:         append([]types.Alert(nil), h.alerts...),
	}
}

func (h *HealthManager) raiseAlert(component, message string, at time.Time) {
	h.alerts = append(h.alerts, types.Alert{Component: component, Message: message, At: at})
	if len(h.alerts) > h.maxAlerts {
		h.alerts = h.alerts[len(h.alerts)-h.maxAlerts:]
	}
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
