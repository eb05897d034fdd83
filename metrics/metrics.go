// Package metrics holds the prometheus collectors of the registry and the
// server that exposes them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the registry counters. The zero value is not usable; build one
// with NewMetrics.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	GateDecisions   *prometheus.CounterVec
	AgentRemovals   *prometheus.CounterVec
	SignatureResult *prometheus.CounterVec
	DispatchQueue   prometheus.Gauge
	Events          *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Agent registration attempts by outcome.",
		}, []string{"outcome"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Authorization gate decisions by outcome.",
		}, []string{"outcome"}),
		AgentRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_removal_reasons_total",
			Help:      "Reasons reported with agent removals.",
		}, []string{"reason"}),
		SignatureResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_requests_total",
			Help:      "Delegated signature calls by domain and outcome.",
		}, []string{"domain", "outcome"}),
		DispatchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Signature requests waiting for a worker.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Emitted registry events by name.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{
		m.Registrations,
		m.GateDecisions,
		m.AgentRemovals,
		m.SignatureResult,
		m.DispatchQueue,
		m.Events,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MetricsServer serves /metrics from its own registry.
type MetricsServer struct {
	Metrics  *Metrics
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server listening on addr. The server owns a fresh
// registry with the registry counters plus the Go and process collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := NewMetrics(namespace, registry)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		Metrics:  m,
		registry: registry,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the /metrics handler, for mounting on another router.
func (s *MetricsServer) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
