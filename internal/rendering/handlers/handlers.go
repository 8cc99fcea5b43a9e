// Package handlers exposes the renderer configuration store over HTTP. The
// config listing is a bare JSON array ordered by id; clients depend on that
// shape.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/rendering/dto"
	"github.com/bluegrid/rrm/internal/rendering/service"
)

type Handlers struct {
	service *service.Service
	logger  *logger.Logger
}

func NewHandlers(svc *service.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "config-handlers")),
	}
}

func RegisterRoutes(router *gin.Engine, svc *service.Service, log *logger.Logger) *Handlers {
	h := NewHandlers(svc, log)
	h.registerHTTP(router)
	return h
}

func (h *Handlers) registerHTTP(router *gin.Engine) {
	config := router.Group("/config")
	config.POST("/", h.createConfig)
	config.PUT("/", h.updateConfig)
	config.GET("/", h.listConfigs)
	config.GET("/:id", h.getConfig)
	config.DELETE("/:id", h.deleteConfig)
}

func (h *Handlers) createConfig(c *gin.Context) {
	var body dto.SaveConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.service.Create(c.Request.Context(), body.ToModel())
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to create renderer config")
		return
	}
	c.JSON(http.StatusCreated, dto.MessageResponse{Message: msg})
}

func (h *Handlers) updateConfig(c *gin.Context) {
	var body dto.SaveConfigRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.service.Update(c.Request.Context(), body.ToModel())
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to update renderer config")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}

func (h *Handlers) listConfigs(c *gin.Context) {
	configs, err := h.service.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list renderer configs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list renderer configs"})
		return
	}
	resp := make([]dto.RendererConfigDTO, 0, len(configs))
	for _, cfg := range configs {
		resp = append(resp, dto.FromConfig(cfg))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) getConfig(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to get renderer config")
		return
	}
	c.JSON(http.StatusOK, dto.FromConfig(cfg))
}

func (h *Handlers) deleteConfig(c *gin.Context) {
	msg, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to delete renderer config")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}
