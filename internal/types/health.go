package types

import "time"

// CircuitState is the three-state circuit breaker machine (spec §4.9).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes the trip/recovery conditions.
type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	RecoveryTimeout     time.Duration `yaml:"recovery_timeout"`
	MinRequestThreshold int           `yaml:"min_request_threshold"`
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold"`
}

// CoordinatorHealth is the health rollup exposed by every coordinator.
type CoordinatorHealth struct {
	IsReady        bool
	ResponseTimeMS float64
	ErrorRate      float64
	CircuitState   CircuitState
	LastCheck      time.Time
	Detail         map[string]string
}

// ComponentHealth names one coordinator's rollup within a system-wide
// health check (spec §4.12).
type ComponentHealth struct {
	Name   string
	Health CoordinatorHealth
}

// Alert records a health transition or SLA violation.
type Alert struct {
	Component string
	Message   string
	At        time.Time
}

// SystemHealth is the result of check_system_health() (spec §4.12).
type SystemHealth struct {
	OverallHealthy bool
	Components     []ComponentHealth
	Uptime         time.Duration
	Alerts         []Alert
}
