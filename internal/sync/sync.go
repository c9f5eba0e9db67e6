// Package sync periodically exports the registry and defect log as a JSONL
// snapshot to S3 and/or a git repository.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Destination is the interface for a sync target (S3, git, etc.).
type Destination interface {
	// Name labels the destination in logs and metrics.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Observer is told the outcome of every destination write.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveSync(destination string, err error)
}

// Scheduler runs periodic syncs to one or more destinations.
type Scheduler struct {
	releases     Releases
	defects      Defects
	destinations []Destination
	interval     time.Duration
	observer     Observer
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithObserver reports each destination write to o.
func WithObserver(o Observer) SchedulerOption { return func(s *Scheduler) { s.observer = o } }

// NewScheduler creates a scheduler that exports the registry and defect log
// to the given destinations at the specified interval.
func NewScheduler(releases Releases, defects Defects, destinations []Destination, interval time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		releases:     releases,
		defects:      defects,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	// Run once immediately at startup.
	_ = s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.SyncOnce(ctx)
		}
	}
}

// writeTimeout bounds a single destination write; a hung git push must not
// hold up the next tick.
const writeTimeout = 2 * time.Minute

// SyncOnce exports one snapshot and writes it to every destination
// concurrently. A failing destination does not stop the others; the joined
// errors are returned.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.releases, s.defects, &buf); err != nil {
		s.logger.Error("sync export failed", "err", err)
		for _, dest := range s.destinations {
			s.observe(dest.Name(), err)
		}
		return err
	}
	data := buf.Bytes()

	errs := make([]error, len(s.destinations))
	var g errgroup.Group
	for i, dest := range s.destinations {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			defer cancel()
			start := time.Now()
			err := dest.Write(wctx, data)
			if err != nil {
				s.logger.Error("sync destination write failed", "destination", dest.Name(), "err", err)
				errs[i] = fmt.Errorf("%s: %w", dest.Name(), err)
			} else {
				s.logger.Debug("sync destination written", "destination", dest.Name(), "duration", time.Since(start))
			}
			s.observe(dest.Name(), err)
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	s.logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data), "failed", err != nil)
	return err
}

func (s *Scheduler) observe(dest string, err error) {
	if s.observer != nil {
		s.observer.ObserveSync(dest, err)
	}
}
