// Package prometheus implements the metrics.Collector contract on top of
// prometheus/client_golang. The collector itself satisfies
// prometheus.Collector, so it can be registered with a registry directly.
package prometheus

import (
	"time"

	"bankledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports ledger metrics in Prometheus format.
type Collector struct {
	transfersTotal   *prometheus.CounterVec
	transferRetries  prometheus.Counter
	transferLatency  prometheus.Histogram
	lookupsTotal     *prometheus.CounterVec
	lookupLatency    prometheus.Histogram
	historyReads     prometheus.Counter
	historyLatency   prometheus.Histogram
	circuitState     *prometheus.GaugeVec
}

// NewCollector creates a Prometheus collector under the given namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		transfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of transfer attempts by outcome",
			},
			[]string{"result"},
		),
		transferRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_retries_total",
				Help:      "Total number of transfer retries after detected conflicts",
			},
		),
		transferLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Transfer execution latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_lookups_total",
				Help:      "Total number of account lookups by cache outcome",
			},
			[]string{"outcome"},
		),
		lookupLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "account_lookup_duration_seconds",
				Help:      "Account lookup latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		historyReads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_reads_total",
				Help:      "Total number of transaction history queries",
			},
		),
		historyLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_read_duration_seconds",
				Help:      "Transaction history query latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"store"},
		),
	}
}

func (c *Collector) RecordTransfer(result string, duration time.Duration) {
	c.transfersTotal.WithLabelValues(result).Inc()
	c.transferLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordTransferRetry() {
	c.transferRetries.Inc()
}

func (c *Collector) RecordLookup(hit bool, duration time.Duration) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.lookupsTotal.WithLabelValues(outcome).Inc()
	c.lookupLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordHistoryRead(duration time.Duration) {
	c.historyReads.Inc()
	c.historyLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.transfersTotal.Describe(ch)
	c.transferRetries.Describe(ch)
	c.transferLatency.Describe(ch)
	c.lookupsTotal.Describe(ch)
	c.lookupLatency.Describe(ch)
	c.historyReads.Describe(ch)
	c.historyLatency.Describe(ch)
	c.circuitState.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.transfersTotal.Collect(ch)
	c.transferRetries.Collect(ch)
	c.transferLatency.Collect(ch)
	c.lookupsTotal.Collect(ch)
	c.lookupLatency.Collect(ch)
	c.historyReads.Collect(ch)
	c.historyLatency.Collect(ch)
	c.circuitState.Collect(ch)
}
