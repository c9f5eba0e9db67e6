package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// pubSub connects a publisher and a subscriber to a fresh server.
func pubSub(t *testing.T, opts ...nats.Option) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })
	sub, err := NewNATSSubscriber(url, opts...)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return pub, sub
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func waitClosed(t *testing.T, ch <-chan Message) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestNATSSubscriber_DecodesReleaseEvent(t *testing.T) {
	pub, sub := pubSub(t)

	ch, cancel, err := sub.Subscribe(AllTopics)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	want := ReleaseUpdated{
		ID:      "ev-7",
		Switch:  "checkout",
		Release: "3_1",
		Config:  model.ReleaseConfig{Mode: model.ModeClosed, BasedOn: "Role"},
	}
	if err := pub.Publish(context.Background(), TopicReleaseUpdated, want); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	msg := receive(t, ch)
	if msg.Topic != TopicReleaseUpdated {
		t.Errorf("Topic = %q, want %q", msg.Topic, TopicReleaseUpdated)
	}
	var got ReleaseUpdated
	if err := msg.Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Switch != want.Switch || got.Release != want.Release || got.Config != want.Config {
		t.Errorf("decoded %+v, want %+v", got, want)
	}
}

func TestNATSSubscriber_TopicFilter(t *testing.T) {
	pub, sub := pubSub(t)

	ch, cancel, err := sub.Subscribe("switchboard.release.*")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	for _, p := range []struct {
		topic string
		event any
	}{
		{TopicDefectsRecorded, DefectsRecorded{Date: "2024-01-01", Count: 1}},
		{TopicReleaseCreated, ReleaseCreated{Switch: "a"}},
		{TopicReleaseUpdated, ReleaseUpdated{Switch: "b"}},
	} {
		if err := pub.Publish(ctx, p.topic, p.event); err != nil {
			t.Fatalf("publishing %s: %v", p.topic, err)
		}
	}

	for _, want := range []string{TopicReleaseCreated, TopicReleaseUpdated} {
		if got := receive(t, ch).Topic; got != want {
			t.Errorf("Topic = %q, want %q", got, want)
		}
	}
	select {
	case msg := <-ch:
		t.Errorf("unexpected message on %s", msg.Topic)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	_, sub := pubSub(t)

	ch, cancel, err := sub.Subscribe(AllTopics)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	cancel()
	cancel()
	waitClosed(t, ch)
}

func TestNATSSubscriber_CancelDuringMessages(t *testing.T) {
	pub, sub := pubSub(t)

	ch, cancel, err := sub.Subscribe(AllTopics)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			_ = pub.Publish(context.Background(), TopicDefectsRecorded, DefectsRecorded{Count: 1})
		}
	}()

	cancel()
	<-done
	waitClosed(t, ch)
}

func TestNATSSubscriber_Options(t *testing.T) {
	_, sub := pubSub(t, nats.ReconnectHandler(func(*nats.Conn) {}))
	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
	if got := sub.conn.Opts.Name; got != clientName+"-watch" {
		t.Errorf("connection name = %q", got)
	}
}

func TestMessage_DecodeInvalid(t *testing.T) {
	var ev DefectsRecorded
	if err := (Message{Topic: TopicDefectsRecorded, Data: []byte("nope")}).Decode(&ev); err == nil {
		t.Fatal("expected decode error")
	}
}
