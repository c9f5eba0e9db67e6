// Package server exposes the switch registry and the defect log over HTTP
// and gRPC.
package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/switchboard/internal/defects"
	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/lock"
	"github.com/alfredjeanlab/switchboard/internal/metrics"
	"github.com/alfredjeanlab/switchboard/internal/registry"
	"github.com/alfredjeanlab/switchboard/internal/store"
)

// SwitchboardServer holds the core services shared by the HTTP handler and
// the gRPC service. Handlers only translate requests; every rule lives in
// the registry and defects packages.
type SwitchboardServer struct {
	registry *registry.Registry
	defects  *defects.Log
	sseHub   *sseHub
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type options struct {
	locker      lock.Locker
	defectsPath string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a SwitchboardServer.
type Option func(*options)

// WithLocker shares one locker between the registry and the defect log.
func WithLocker(l lock.Locker) Option { return func(o *options) { o.locker = l } }

// WithDefectsPath stores the defect log at a store path other than "defects".
func WithDefectsPath(p string) Option { return func(o *options) { o.defectsPath = p } }

// WithMetrics enables request and event metrics and mounts GET /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLogger sets the logger used by the server and the core services.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// NewSwitchboardServer returns a server backed by the given store. Change
// events go to p, to connected SSE clients and, when enabled, to metrics.
func NewSwitchboardServer(s store.Store, p events.Publisher, opts ...Option) *SwitchboardServer {
	o := options{
		locker:      lock.NewKeyedMutex(),
		defectsPath: defects.DefaultPath,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	srv := &SwitchboardServer{
		sseHub:  newSSEHub(),
		metrics: o.metrics,
		logger:  o.logger,
	}

	if p == nil {
		p = &events.NoopPublisher{}
	}
	fanout := events.Fanout{p, hubPublisher{srv}}
	if o.metrics != nil {
		fanout = append(fanout, o.metrics)
	}
	// The caller owns p; closing the fanout would close it twice.
	pub := nonClosing{fanout}

	srv.registry = registry.New(s,
		registry.WithLocker(o.locker),
		registry.WithPublisher(pub),
		registry.WithLogger(o.logger),
	)
	srv.defects = defects.New(s,
		defects.WithPath(o.defectsPath),
		defects.WithLocker(o.locker),
		defects.WithPublisher(pub),
		defects.WithLogger(o.logger),
	)
	return srv
}

// Registry returns the switch registry.
func (s *SwitchboardServer) Registry() *registry.Registry { return s.registry }

// Defects returns the defect log.
func (s *SwitchboardServer) Defects() *defects.Log { return s.defects }

// hubPublisher feeds published events to the SSE hub.
type hubPublisher struct{ s *SwitchboardServer }

func (h hubPublisher) Publish(_ context.Context, topic string, event any) error {
	h.s.broadcastEvent(topic, event)
	return nil
}

func (h hubPublisher) Close() error { return nil }

type nonClosing struct{ events.Publisher }

func (nonClosing) Close() error { return nil }

// broadcastEvent fans an event out to SSE clients.
func (s *SwitchboardServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
