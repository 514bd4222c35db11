// Package memory provides an in-memory metrics collector, used in tests and
// when running without a metrics backend.
package memory

import (
	"sync"
	"time"

	"bankledger/pkg/metrics"
)

// Collector accumulates counts in memory. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	transfers     map[string]uint64
	retries       uint64
	lookupHits    uint64
	lookupMisses  uint64
	historyReads  uint64
	circuitStates map[string]metrics.CircuitState
}

// NewCollector creates an empty in-memory collector.
func NewCollector() *Collector {
	return &Collector{
		transfers:     make(map[string]uint64),
		circuitStates: make(map[string]metrics.CircuitState),
	}
}

func (c *Collector) RecordTransfer(result string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transfers[result]++
}

func (c *Collector) RecordTransferRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func (c *Collector) RecordLookup(hit bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.lookupHits++
	} else {
		c.lookupMisses++
	}
}

func (c *Collector) RecordHistoryRead(_ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyReads++
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuitStates[name] = state
}

// Transfers returns the number of transfers recorded with the given result.
func (c *Collector) Transfers(result string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfers[result]
}

// Retries returns the number of recorded conflict retries.
func (c *Collector) Retries() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Lookups returns the recorded cache hit and miss counts.
func (c *Collector) Lookups() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupHits, c.lookupMisses
}

// HistoryReads returns the number of recorded history queries.
func (c *Collector) HistoryReads() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyReads
}

// CircuitState returns the last recorded state for the named breaker.
func (c *Collector) CircuitState(name string) metrics.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circuitStates[name]
}
