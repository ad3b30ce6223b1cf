// Package metrics collects workstation control-plane instrumentation:
// command dispatch counts and latency, queue depth, fault counts, and
// circuit breaker state. Rendering/exposition is explicitly out of scope
// (spec.md's Non-goals) — this package only owns the collectors; a caller
// that wants an HTTP scrape endpoint mounts promhttp.HandlerFor(Registry(),
// ...) itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric this module records.
type Collectors struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
	faultsTotal      *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

var defaultBuckets = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}

// New builds and registers the collector set under namespace. Safe to call
// once per process; the composition root holds the result for the lifetime
// of the daemon.
func New(namespace string) *Collectors {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &Collectors{
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total dispatched commands by op and result.",
			},
			[]string{"op", "result"},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_milliseconds",
				Help:      "Handler dispatch latency in milliseconds, by op.",
				Buckets:   defaultBuckets,
			},
			[]string{"op"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current depth of the inbound command queue, by queue name.",
			},
			[]string{"queue"},
		),

		faultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_total",
				Help:      "Total fault events published, by service and severity.",
			},
			[]string{"service", "severity"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open), by breaker name.",
			},
			[]string{"breaker"},
		),
	}

	registry.MustRegister(
		c.commandsTotal,
		c.dispatchDuration,
		c.queueDepth,
		c.faultsTotal,
		c.breakerState,
	)
	return c
}

// Registry exposes the underlying registry so a caller can mount a scrape
// handler if it chooses to.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// RecordCommand records one dispatched command's outcome.
func (c *Collectors) RecordCommand(op, result string) {
	c.commandsTotal.WithLabelValues(op, result).Inc()
}

// ObserveDispatch records how long a handler took to produce a response.
func (c *Collectors) ObserveDispatch(op string, ms float64) {
	c.dispatchDuration.WithLabelValues(op).Observe(ms)
}

// SetQueueDepth sets the current depth gauge for a named queue.
func (c *Collectors) SetQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordFault increments the fault counter for a service/severity pair.
func (c *Collectors) RecordFault(service, severity string) {
	c.faultsTotal.WithLabelValues(service, severity).Inc()
}

// SetBreakerState records a circuit breaker's current state. state follows
// the 0=closed/1=open/2=half_open convention used throughout this module.
func (c *Collectors) SetBreakerState(breaker string, state int) {
	c.breakerState.WithLabelValues(breaker).Set(float64(state))
}
