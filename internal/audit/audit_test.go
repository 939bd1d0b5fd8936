package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

type capturedMessage struct {
	topic string
	key   string
	value any
}

type fakePublisher struct {
	messages chan capturedMessage
}

func (f *fakePublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	f.messages <- capturedMessage{topic: topic, key: key, value: value}
	return 0, 1, nil
}

func (f *fakePublisher) Close() error { return nil }

func TestEmitterPublishesEvent(t *testing.T) {
	pub := &fakePublisher{messages: make(chan capturedMessage, 1)}
	em := New(pub, "exchange.audit", slog.New(slog.NewTextHandler(io.Discard, nil)))

	actor := uuid.New()
	em.Emit(EventAPIKeyCreated, actor, "198.51.100.4", map[string]any{"key_name": "bot"})

	var msg capturedMessage
	select {
	case msg = <-pub.messages:
	case <-time.After(time.Second):
		t.Fatal("event was not published")
	}

	if msg.topic != "exchange.audit" {
		t.Fatalf("unexpected topic %q", msg.topic)
	}
	if msg.key != actor.String() {
		t.Fatalf("expected actor-keyed message, got %q", msg.key)
	}

	raw, err := json.Marshal(msg.value)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.EventType != EventAPIKeyCreated {
		t.Fatalf("unexpected event type %q", evt.EventType)
	}
	if evt.ActorID != actor.String() || evt.IP != "198.51.100.4" {
		t.Fatalf("actor fields not carried: %+v", evt)
	}
	if evt.EventID == "" || evt.Timestamp.IsZero() {
		t.Fatal("envelope not populated")
	}
}

func TestNilEmitterIsNoop(t *testing.T) {
	var em *Emitter
	em.Emit(EventLogin, uuid.New(), "", nil)

	if New(nil, "topic", nil) != nil {
		t.Fatal("expected nil emitter without publisher")
	}
	if New(&fakePublisher{}, "", nil) != nil {
		t.Fatal("expected nil emitter without topic")
	}
}
