// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "switchboard"

// Metrics groups every collector the service updates. Collectors are per
// instance so tests can use a fresh registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	grpcRequestsTotal   *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
	syncRunsTotal       *prometheus.CounterVec
	syncLastSuccess     *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry.
func New(logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		grpcRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Total number of gRPC requests by method and status code",
			},
			[]string{"method", "code"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Change events published by topic",
			},
			[]string{"topic"},
		),
		syncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Snapshot exports by destination and result",
			},
			[]string{"destination", "result"},
		),
		syncLastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful export per destination",
			},
			[]string{"destination"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"go_collector":        collectors.NewGoCollector(),
		"process_collector":   collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		"http_requests_total": m.httpRequestsTotal,
		"http_duration":       m.httpRequestDuration,
		"grpc_requests_total": m.grpcRequestsTotal,
		"events_total":        m.eventsTotal,
		"sync_runs_total":     m.syncRunsTotal,
		"sync_last_success":   m.syncLastSuccess,
	} {
		registerIfNotExists(m.registry, c, name, logger)
	}
	return m
}

func registerIfNotExists(reg *prometheus.Registry, c prometheus.Collector, name string, logger *slog.Logger) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logger.Error("failed to register collector", "name", name, "error", err)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveGRPC records one completed gRPC call.
func (m *Metrics) ObserveGRPC(method, code string) {
	if m == nil {
		return
	}
	m.grpcRequestsTotal.WithLabelValues(method, code).Inc()
}

// ObserveSync records the result of one snapshot export.
func (m *Metrics) ObserveSync(destination string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	} else {
		m.syncLastSuccess.WithLabelValues(destination).SetToCurrentTime()
	}
	m.syncRunsTotal.WithLabelValues(destination, result).Inc()
}

// Publish counts an event by topic. It lets Metrics sit in an events.Fanout.
func (m *Metrics) Publish(_ context.Context, topic string, _ any) error {
	if m == nil {
		return nil
	}
	m.eventsTotal.WithLabelValues(topic).Inc()
	return nil
}

// Close is a no-op; it completes the events.Publisher method set.
func (m *Metrics) Close() error { return nil }
