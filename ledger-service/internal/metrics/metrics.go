// Package metrics wraps the Prometheus collectors for the ledger's
// asynchronous side: the change feed, projections and the transfer saga.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// Result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultRebuilt = "rebuilt"
)

type Collector struct {
	registry *prometheus.Registry

	sagaStepLatency      *prometheus.HistogramVec
	sagaOutcomes         *prometheus.CounterVec
	compensationFailures prometheus.Counter
	projectionEvents     *prometheus.CounterVec
	relayRecords         *prometheus.CounterVec
	dispatchRecords      *prometheus.CounterVec
	deadLetters          *prometheus.CounterVec
	commandRetries       *prometheus.CounterVec
}

// New builds a collector on its own registry.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.sagaStepLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "step_duration_seconds",
			Help:      "Time taken to run one transfer saga step",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"step", "result"},
	)

	c.sagaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "outcomes_total",
			Help:      "Transfers that reached a terminal status",
		},
		[]string{"status"},
	)

	c.compensationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "compensation_failures_total",
			Help:      "Source debits that could not be compensated and need manual reconciliation",
		},
	)

	c.projectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "events_total",
			Help:      "Events seen by read model handlers",
		},
		[]string{"handler", "result"},
	)

	c.relayRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "relayed_records_total",
			Help:      "Outbox records handed to the change feed sink",
		},
		[]string{"result"},
	)

	c.dispatchRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dispatched_records_total",
			Help:      "Change feed records delivered to event handlers",
		},
		[]string{"result"},
	)

	c.deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dead_letters_total",
			Help:      "Outbox records dropped after exhausting their delivery attempts",
		},
		[]string{"event_type"},
	)

	c.commandRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "retries_total",
			Help:      "Command attempts repeated after a concurrency conflict",
		},
		[]string{"command"},
	)

	c.registry.MustRegister(
		c.sagaStepLatency,
		c.sagaOutcomes,
		c.compensationFailures,
		c.projectionEvents,
		c.relayRecords,
		c.dispatchRecords,
		c.deadLetters,
		c.commandRetries,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSagaStep(step string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.sagaStepLatency.WithLabelValues(step, result(err)).Observe(duration.Seconds())
}

func (c *Collector) RecordSagaOutcome(status string) {
	if c == nil {
		return
	}
	c.sagaOutcomes.WithLabelValues(status).Inc()
}

func (c *Collector) RecordCompensationFailure() {
	if c == nil {
		return
	}
	c.compensationFailures.Inc()
}

func (c *Collector) RecordProjection(handler, outcome string) {
	if c == nil {
		return
	}
	c.projectionEvents.WithLabelValues(handler, outcome).Inc()
}

func (c *Collector) RecordRelay(published, failed int) {
	if c == nil {
		return
	}
	c.relayRecords.WithLabelValues(ResultOK).Add(float64(published))
	c.relayRecords.WithLabelValues(ResultError).Add(float64(failed))
}

func (c *Collector) RecordDispatch(err error) {
	if c == nil {
		return
	}
	c.dispatchRecords.WithLabelValues(result(err)).Inc()
}

func (c *Collector) RecordDeadLetter(eventType string) {
	if c == nil {
		return
	}
	c.deadLetters.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordCommandRetry(command string) {
	if c == nil {
		return
	}
	c.commandRetries.WithLabelValues(command).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
