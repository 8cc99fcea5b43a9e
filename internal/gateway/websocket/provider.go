package websocket

import (
	"context"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/events/bus"
)

// Provide creates the WebSocket gateway and wires it to the event bus.
// The hub's run loop and bus subscriptions live until ctx is cancelled.
func Provide(ctx context.Context, eventBus bus.EventBus, log *logger.Logger) *Gateway {
	gateway := NewGateway(log)
	RegisterEventStreamNotifications(ctx, eventBus, gateway.Hub, log)
	go gateway.Hub.Run(ctx)
	return gateway
}
