package websocket

import (
	"github.com/gin-gonic/gin"

	"github.com/bluegrid/rrm/internal/common/logger"
)

// Gateway bundles the hub and HTTP handler for the event stream
type Gateway struct {
	Hub     *Hub
	Handler *Handler
	logger  *logger.Logger
}

// NewGateway creates a new WebSocket gateway with all components initialized
func NewGateway(log *logger.Logger) *Gateway {
	hub := NewHub(log)
	handler := NewHandler(hub, log)

	return &Gateway{
		Hub:     hub,
		Handler: handler,
		logger:  log,
	}
}

// SetupRoutes adds the WebSocket routes to the Gin engine
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws/events", g.Handler.HandleConnection)
}
