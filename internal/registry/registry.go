// Package registry manages switch release configurations.
//
// Records live under switches/{name}/{release} in the backing store. A
// release, once created, is never overwritten by CreateRelease; only
// UpdateRelease replaces it.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/idgen"
	"github.com/alfredjeanlab/switchboard/internal/lock"
	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/store"
)

// Root is the store path holding every switch.
const Root = "switches"

// Registry implements the switch registry operations on a store.Store.
// It keeps no state between calls; every operation re-reads the store.
type Registry struct {
	store     store.Store
	locker    lock.Locker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocker sets the locker guarding create. Defaults to an in-process
// keyed mutex.
func WithLocker(l lock.Locker) Option { return func(r *Registry) { r.locker = l } }

// WithPublisher sets where change events go. Defaults to a no-op publisher.
func WithPublisher(p events.Publisher) Option { return func(r *Registry) { r.publisher = p } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// New returns a Registry backed by s.
func New(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:     s,
		locker:    lock.NewKeyedMutex(),
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ListSwitches returns every switch name in ascending order. An empty store
// yields an empty slice.
func (r *Registry) ListSwitches(ctx context.Context) ([]string, error) {
	raw, err := r.store.Get(ctx, Root)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, persistenceError("read switches", err)
	}

	var switches map[string]json.RawMessage
	if err := json.Unmarshal(raw, &switches); err != nil {
		return nil, persistenceError("decode switches", err)
	}
	names := make([]string, 0, len(switches))
	for name := range switches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListReleases returns the releases of one switch. An unknown switch yields
// an empty map, not an error.
func (r *Registry) ListReleases(ctx context.Context, switchName string) (map[string]model.ReleaseConfig, error) {
	name, err := model.SwitchName(switchName)
	if err != nil {
		return nil, err
	}

	releases, err := r.readSwitch(ctx, name)
	if err != nil {
		return nil, err
	}
	if releases == nil {
		releases = map[string]model.ReleaseConfig{}
	}
	return releases, nil
}

// GetRelease returns one release configuration, or an error matching
// model.ErrNotFound.
func (r *Registry) GetRelease(ctx context.Context, switchName, release string) (model.ReleaseConfig, error) {
	name, rel, err := model.ReleaseKey(switchName, release)
	if err != nil {
		return model.ReleaseConfig{}, err
	}

	raw, err := r.store.Get(ctx, releasePath(name, rel))
	if errors.Is(err, store.ErrNotFound) {
		return model.ReleaseConfig{}, fmt.Errorf("%w: release %s of switch %s", model.ErrNotFound, rel, name)
	}
	if err != nil {
		return model.ReleaseConfig{}, persistenceError("read release", err)
	}

	var cfg model.ReleaseConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return model.ReleaseConfig{}, persistenceError("decode release", err)
	}
	return cfg, nil
}

// CreateRelease adds a release to a switch, creating the switch if needed.
// It fails with model.ErrAlreadyExists, writing nothing, when the release is
// already present. The returned Release carries the normalized identifier.
func (r *Registry) CreateRelease(ctx context.Context, switchName, release string, cfg model.ReleaseConfig) (model.Release, error) {
	name, rel, err := model.ReleaseKey(switchName, release)
	if err != nil {
		return model.Release{}, err
	}
	path := releasePath(name, rel)

	unlock, err := r.locker.Lock(ctx, path)
	if err != nil {
		return model.Release{}, persistenceError("lock "+path, err)
	}
	defer unlock()

	existing, err := r.readSwitch(ctx, name)
	if err != nil {
		return model.Release{}, err
	}
	if _, ok := existing[rel]; ok {
		return model.Release{}, alreadyExists(name, rel)
	}

	value, err := json.Marshal(cfg)
	if err != nil {
		return model.Release{}, persistenceError("encode release", err)
	}
	// Create re-checks inside the store so a writer that bypassed the
	// locker still cannot overwrite.
	if err := r.store.Create(ctx, path, value); err != nil {
		if errors.Is(err, store.ErrExists) {
			return model.Release{}, alreadyExists(name, rel)
		}
		return model.Release{}, persistenceError("write release", err)
	}

	r.logger.Info("release created", "switch", name, "release", rel, "mode", cfg.Mode)
	r.publish(ctx, events.TopicReleaseCreated, events.ReleaseCreated{
		ID: r.eventID(), Switch: name, Release: rel, Config: cfg, Timestamp: r.now().UTC(),
	})
	return model.Release{Release: rel, ReleaseConfig: cfg}, nil
}

// UpdateRelease replaces a release configuration wholesale, creating the
// switch and release when absent.
func (r *Registry) UpdateRelease(ctx context.Context, switchName, release string, cfg model.ReleaseConfig) (model.Release, error) {
	name, rel, err := model.ReleaseKey(switchName, release)
	if err != nil {
		return model.Release{}, err
	}
	path := releasePath(name, rel)

	value, err := json.Marshal(cfg)
	if err != nil {
		return model.Release{}, persistenceError("encode release", err)
	}

	unlock, err := r.locker.Lock(ctx, path)
	if err != nil {
		return model.Release{}, persistenceError("lock "+path, err)
	}
	defer unlock()

	if err := r.store.Put(ctx, path, value); err != nil {
		return model.Release{}, persistenceError("write release", err)
	}

	r.logger.Info("release updated", "switch", name, "release", rel, "mode", cfg.Mode)
	r.publish(ctx, events.TopicReleaseUpdated, events.ReleaseUpdated{
		ID: r.eventID(), Switch: name, Release: rel, Config: cfg, Timestamp: r.now().UTC(),
	})
	return model.Release{Release: rel, ReleaseConfig: cfg}, nil
}

// readSwitch returns the releases stored for name, or nil when the switch
// does not exist.
func (r *Registry) readSwitch(ctx context.Context, name string) (map[string]model.ReleaseConfig, error) {
	raw, err := r.store.Get(ctx, store.Join(Root, name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("read switch "+name, err)
	}

	var releases map[string]model.ReleaseConfig
	if err := json.Unmarshal(raw, &releases); err != nil {
		return nil, persistenceError("decode switch "+name, err)
	}
	return releases, nil
}

// publish emits a change event. Failures are logged and never fail the
// operation, which has already been written.
func (r *Registry) publish(ctx context.Context, topic string, event any) {
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (r *Registry) eventID() string {
	id, err := idgen.NewEventID()
	if err != nil {
		r.logger.Warn("failed to generate event id", "error", err)
		return ""
	}
	return id
}

func releasePath(name, release string) string {
	return store.Join(Root, name, release)
}

func alreadyExists(name, release string) error {
	return fmt.Errorf("%w: release %s already exists for switch %s", model.ErrAlreadyExists, release, name)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrPersistence, op, err)
}
