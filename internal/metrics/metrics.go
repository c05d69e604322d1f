// Package metrics owns the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splat"

// Result labels shared by the counters.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultUnchanged = "unchanged"
	ResultRejected  = "rejected"
	ResultDropped   = "dropped"
)

// Metrics is a private registry and its collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	captureEvents      *prometheus.CounterVec
	storeWrites        *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	impersonationSteps *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captureEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "events_total",
			Help:      "Gateway events seen by the capture pipeline, by kind and result.",
		}, []string{"kind", "result"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Message store writes, by operation and result.",
		}, []string{"op", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "queue_depth",
			Help:      "Capture writes waiting in worker queues.",
		}),
		impersonationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "impersonation",
			Name:      "steps_total",
			Help:      "Impersonation post steps, by step kind and status.",
		}, []string{"step", "status"}),
	}
	m.registry.MustRegister(
		m.captureEvents,
		m.storeWrites,
		m.queueDepth,
		m.impersonationSteps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CaptureEvent(kind, result string) {
	if m == nil {
		return
	}
	m.captureEvents.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) StoreWrite(op, result string) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(op, result).Inc()
}

func (m *Metrics) AddQueueDepth(delta float64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(delta)
}

func (m *Metrics) ImpersonationStep(step, status string) {
	if m == nil {
		return
	}
	m.impersonationSteps.WithLabelValues(step, status).Inc()
}
