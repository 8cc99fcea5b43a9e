package websocket

import (
	"context"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/events/bus"
	ws "github.com/bluegrid/rrm/pkg/websocket"
	"go.uber.org/zap"
)

// EventStreamBroadcaster forwards bus events onto the WebSocket hub.
// Session lifecycle events are routed per session so narrowed clients
// only see their own; configuration and administrative events go to
// every connected client.
type EventStreamBroadcaster struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

func RegisterEventStreamNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *EventStreamBroadcaster {
	b := &EventStreamBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-event-broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	b.subscribeSessions(eventBus, events.BuildSessionWildcardSubject())
	b.subscribe(eventBus, events.BuildConfigWildcardSubject(), ws.ActionConfigEvent)
	b.subscribe(eventBus, events.BuildAdminWildcardSubject(), ws.ActionAdminEvent)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

func (b *EventStreamBroadcaster) Close() {
	for _, sub := range b.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// subscribeSessions routes lifecycle events by the session they concern.
func (b *EventStreamBroadcaster) subscribeSessions(eventBus bus.EventBus, subject string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		sessionID := extractSessionID(event.Data)
		if sessionID == "" {
			return nil
		}
		msg, err := ws.NewNotification(ws.ActionSessionEvent, event)
		if err != nil {
			b.logger.Error("failed to build websocket notification",
				zap.String("event", event.Type), zap.Error(err))
			return nil
		}
		b.hub.BroadcastToSession(sessionID, msg)
		return nil
	})
	if err != nil {
		b.logger.Error("failed to subscribe to events", zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}

func (b *EventStreamBroadcaster) subscribe(eventBus bus.EventBus, subject, action string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		msg, err := ws.NewNotification(action, event)
		if err != nil {
			b.logger.Error("failed to build websocket notification",
				zap.String("action", action), zap.Error(err))
			return nil
		}
		b.hub.Broadcast(msg)
		return nil
	})
	if err != nil {
		b.logger.Error("failed to subscribe to events", zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}

func extractSessionID(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	if sessionID, ok := data["session_id"].(string); ok {
		return sessionID
	}
	return ""
}
