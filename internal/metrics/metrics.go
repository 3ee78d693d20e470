// internal/metrics/metrics.go
package metrics

import "time"

// MetricsCollector defines the interface for collecting engine metrics.
type MetricsCollector interface {
	// Transaction engine
	RecordTransaction(txType string, outcome string, duration time.Duration)
	RecordFee(txType string, fee float64)
	RecordIdempotentReplay(source string)

	// Event queue
	RecordQueueDepth(depth int)
	RecordEventDropped()

	// Notifications
	RecordNotification(channel string, success bool)
	RecordCircuitState(channel string, state CircuitState)
}

// CircuitState represents the state of a delivery channel's circuit breaker.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every measurement. It is the default when metrics are not wired.
type NoOpCollector struct{}

func (NoOpCollector) RecordTransaction(string, string, time.Duration) {}
func (NoOpCollector) RecordFee(string, float64)                       {}
func (NoOpCollector) RecordIdempotentReplay(string)                   {}
func (NoOpCollector) RecordQueueDepth(int)                            {}
func (NoOpCollector) RecordEventDropped()                             {}
func (NoOpCollector) RecordNotification(string, bool)                 {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)         {}
