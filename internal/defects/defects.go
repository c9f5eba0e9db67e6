// Package defects maintains the date-partitioned defect log.
//
// The whole log is one JSON array document. RecordDefects merges into it with
// a read-modify-write held under a lock on the document path.
package defects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/switchboard/internal/events"
	"github.com/alfredjeanlab/switchboard/internal/idgen"
	"github.com/alfredjeanlab/switchboard/internal/lock"
	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/registry"
	"github.com/alfredjeanlab/switchboard/internal/store"
)

// DefaultPath is the store path of the defect-log document.
const DefaultPath = "defects"

// SavedMessage is returned to clients after a successful RecordDefects.
const SavedMessage = "Data saved successfully"

// Log implements the defect-log operations on a store.Store.
type Log struct {
	store     store.Store
	path      string
	pathErr   error
	locker    lock.Locker
	publisher events.Publisher
	logger    *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithPath overrides the document path.
func WithPath(p string) Option { return func(l *Log) { l.path = p } }

// WithLocker sets the locker guarding the merge.
func WithLocker(lk lock.Locker) Option { return func(l *Log) { l.locker = lk } }

// WithPublisher sets where change events go.
func WithPublisher(p events.Publisher) Option { return func(l *Log) { l.publisher = p } }

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option { return func(l *Log) { l.logger = lg } }

// New returns a Log backed by s.
func New(s store.Store, opts ...Option) *Log {
	l := &Log{
		store:     s,
		path:      DefaultPath,
		locker:    lock.NewKeyedMutex(),
		publisher: &events.NoopPublisher{},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	if p, err := CheckPath(l.path); err != nil {
		l.logger.Error("unusable defect log path", "path", l.path, "error", err)
		l.pathErr = err
	} else {
		l.path = p
	}
	return l
}

// CheckPath cleans p and rejects paths that share a subtree with the switch
// registry. A Put under the registry replaces ancestor leaves, so an
// overlapping log would be erased by the next release write.
func CheckPath(p string) (string, error) {
	clean, err := store.CleanPath(p)
	if err != nil {
		return "", fmt.Errorf("defect log path %q: %w", p, err)
	}
	if store.Within(clean, registry.Root) || store.Within(registry.Root, clean) {
		return "", fmt.Errorf("defect log path %q overlaps the %q tree", p, registry.Root)
	}
	return clean, nil
}

// Path returns the document path the log is stored under.
func (l *Log) Path() string { return l.path }

// RecordDefects appends items to the entry for date, or adds a new entry at
// the end of the log when no entry has that exact date. items must be
// non-nil; an empty list still creates the entry. Nothing is deduplicated.
func (l *Log) RecordDefects(ctx context.Context, date string, items []model.DefectItem) error {
	if err := validate(date, items); err != nil {
		return err
	}
	if l.pathErr != nil {
		return persistenceError("defect log path", l.pathErr)
	}

	unlock, err := l.locker.Lock(ctx, l.path)
	if err != nil {
		return persistenceError("lock "+l.path, err)
	}
	defer unlock()

	log, err := l.read(ctx)
	if err != nil {
		return err
	}

	if i := log.Index(date); i >= 0 {
		log[i].Defects = append(log[i].Defects, items...)
	} else {
		log = append(log, model.DefectEntry{Date: date, Defects: append([]model.DefectItem{}, items...)})
	}

	data, err := json.Marshal(log)
	if err != nil {
		return persistenceError("encode defect log", err)
	}
	if err := l.store.Put(ctx, l.path, data); err != nil {
		return persistenceError("write defect log", err)
	}

	l.logger.Info("defects recorded", "date", date, "count", len(items))
	eventID, err := idgen.NewEventID()
	if err != nil {
		l.logger.Warn("failed to generate event id", "error", err)
	}
	if err := l.publisher.Publish(ctx, events.TopicDefectsRecorded, events.DefectsRecorded{
		ID: eventID, Date: date, Count: len(items), Timestamp: time.Now().UTC(),
	}); err != nil {
		l.logger.Warn("failed to publish event", "topic", events.TopicDefectsRecorded, "error", err)
	}
	return nil
}

// GetLog returns the full log. A missing document yields an empty log.
func (l *Log) GetLog(ctx context.Context) (model.DefectLog, error) {
	log, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	for i := range log {
		if log[i].Defects == nil {
			log[i].Defects = []model.DefectItem{}
		}
	}
	return log, nil
}

func (l *Log) read(ctx context.Context) (model.DefectLog, error) {
	if l.pathErr != nil {
		return nil, persistenceError("defect log path", l.pathErr)
	}
	raw, err := l.store.Get(ctx, l.path)
	if errors.Is(err, store.ErrNotFound) {
		return model.DefectLog{}, nil
	}
	if err != nil {
		return nil, persistenceError("read defect log", err)
	}

	var log model.DefectLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, persistenceError("decode defect log", err)
	}
	if log == nil {
		log = model.DefectLog{}
	}
	return log, nil
}

func validate(date string, items []model.DefectItem) error {
	var ve model.ValidationError
	if strings.TrimSpace(date) == "" {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "date", Message: "is required"})
	}
	if items == nil {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "defects", Message: "must be a list"})
	}
	for i, item := range items {
		if !json.Valid(item) {
			ve.Errors = append(ve.Errors, model.FieldError{Field: fmt.Sprintf("defects[%d]", i), Message: "is not valid JSON"})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrPersistence, op, err)
}
