package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// Event topic constants
const (
	TopicReleaseCreated  = "switchboard.release.created"
	TopicReleaseUpdated  = "switchboard.release.updated"
	TopicDefectsRecorded = "switchboard.defects.recorded"
)

// AllTopics matches every switchboard event (NATS wildcard syntax).
const AllTopics = "switchboard.>"

// Event types

type ReleaseCreated struct {
	ID        string              `json:"id"`
	Switch    string              `json:"switch"`
	Release   string              `json:"release"`
	Config    model.ReleaseConfig `json:"config"`
	Timestamp time.Time           `json:"timestamp"`
}

type ReleaseUpdated struct {
	ID        string              `json:"id"`
	Switch    string              `json:"switch"`
	Release   string              `json:"release"`
	Config    model.ReleaseConfig `json:"config"`
	Timestamp time.Time           `json:"timestamp"`
}

// DefectsRecorded carries the count rather than the items; defect payloads
// are opaque and can be large.
type DefectsRecorded struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher discards every event. It is the default when no bus is
// configured.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }

// Message is one event as seen by a subscriber.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals the JSON payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Subscriber delivers events matching a topic pattern until cancelled.
type Subscriber interface {
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
