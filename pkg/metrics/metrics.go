// Package metrics defines the collector contract for ledger observability.
// Implementations live in subpackages; NoOpCollector is used when metrics
// are disabled.
package metrics

import "time"

// CircuitState represents the state of a store circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

// String returns the state name for logging and metric labels.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitHalfOpen:
		return "half_open"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Collector receives measurements from the transfer engine, the account
// lookup path and the resilience layer.
type Collector interface {
	// RecordTransfer records one transfer attempt with its outcome label
	// (see ledger.ClassifyError) and total duration.
	RecordTransfer(result string, duration time.Duration)

	// RecordTransferRetry records one retry caused by a detected conflict.
	RecordTransferRetry()

	// RecordLookup records an account lookup and whether the cache served it.
	RecordLookup(hit bool, duration time.Duration)

	// RecordHistoryRead records one history query.
	RecordHistoryRead(duration time.Duration)

	// RecordCircuitState records a circuit breaker state change.
	RecordCircuitState(name string, state CircuitState)
}

// NoOpCollector discards all measurements.
type NoOpCollector struct{}

func (NoOpCollector) RecordTransfer(string, time.Duration)    {}
func (NoOpCollector) RecordTransferRetry()                    {}
func (NoOpCollector) RecordLookup(bool, time.Duration)        {}
func (NoOpCollector) RecordHistoryRead(time.Duration)         {}
func (NoOpCollector) RecordCircuitState(string, CircuitState) {}
