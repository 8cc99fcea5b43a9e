package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/events/bus"
	ws "github.com/bluegrid/rrm/pkg/websocket"
)

func receiveMessage(t *testing.T, c *Client) *ws.Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket message")
		return nil
	}
}

func TestEventStreamBroadcaster_SessionEvents(t *testing.T) {
	log := testLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(log)
	go hub.Run(ctx)

	eventBus := bus.NewMemoryEventBus(log)
	defer eventBus.Close()

	b := RegisterEventStreamNotifications(ctx, eventBus, hub, log)
	defer b.Close()

	client := newTestClient("c")
	hub.Register(client)

	event := bus.NewEvent(events.SessionRunning, "session-service", map[string]interface{}{
		"session_id": "s1",
		"status":     "RUNNING",
	})
	subject := events.BuildSessionSubject(events.SessionRunning, "s1")
	if err := eventBus.Publish(ctx, subject, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg := receiveMessage(t, client)
	if msg.Action != ws.ActionSessionEvent {
		t.Errorf("action = %q, want %q", msg.Action, ws.ActionSessionEvent)
	}
	if msg.Type != ws.MessageTypeNotification {
		t.Errorf("type = %q, want %q", msg.Type, ws.MessageTypeNotification)
	}

	var payload bus.Event
	if err := msg.ParsePayload(&payload); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}
	if payload.Type != events.SessionRunning {
		t.Errorf("payload type = %q, want %q", payload.Type, events.SessionRunning)
	}
	if payload.Data["session_id"] != "s1" {
		t.Errorf("payload session_id = %v, want s1", payload.Data["session_id"])
	}
}

func TestEventStreamBroadcaster_ConfigEventsReachEveryone(t *testing.T) {
	log := testLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(log)
	go hub.Run(ctx)

	eventBus := bus.NewMemoryEventBus(log)
	defer eventBus.Close()

	b := RegisterEventStreamNotifications(ctx, eventBus, hub, log)
	defer b.Close()

	// Narrowed to a session, but config events are not session scoped.
	client := newTestClient("c")
	hub.Register(client)
	hub.SubscribeToSession(client, "s1")

	event := bus.NewEvent(events.ConfigUpdated, "config-service", map[string]interface{}{
		"id": "livre",
	})
	if err := eventBus.Publish(ctx, events.ConfigUpdated, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg := receiveMessage(t, client)
	if msg.Action != ws.ActionConfigEvent {
		t.Errorf("action = %q, want %q", msg.Action, ws.ActionConfigEvent)
	}
}

func TestEventStreamBroadcaster_CloseUnsubscribes(t *testing.T) {
	log := testLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(log)
	eventBus := bus.NewMemoryEventBus(log)
	defer eventBus.Close()

	b := RegisterEventStreamNotifications(ctx, eventBus, hub, log)
	if len(b.subscriptions) != 3 {
		t.Fatalf("expected 3 subscriptions, got %d", len(b.subscriptions))
	}

	subs := append([]bus.Subscription(nil), b.subscriptions...)
	b.Close()

	if b.subscriptions != nil {
		t.Error("expected subscriptions to be nil after Close")
	}
	for i, sub := range subs {
		if sub.IsValid() {
			t.Errorf("subscription %d still valid after Close", i)
		}
	}
}

func TestEventStreamBroadcaster_NilBus(t *testing.T) {
	log := testLogger(t)
	hub := NewHub(log)

	b := RegisterEventStreamNotifications(context.Background(), nil, hub, log)
	if len(b.subscriptions) != 0 {
		t.Errorf("expected no subscriptions with nil bus, got %d", len(b.subscriptions))
	}
	b.Close()
}
