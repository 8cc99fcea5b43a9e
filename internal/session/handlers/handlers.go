// Package handlers exposes the session lifecycle over HTTP. Every endpoint
// addresses a session through the session_id query parameter; the create
// endpoint returns the generated id in its body.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/session/dto"
	"github.com/bluegrid/rrm/internal/session/service"
)

type Handlers struct {
	engine *service.Service
	logger *logger.Logger
}

func NewHandlers(engine *service.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: log.WithFields(zap.String("component", "session-handlers")),
	}
}

func RegisterRoutes(router *gin.Engine, engine *service.Service, log *logger.Logger) *Handlers {
	h := NewHandlers(engine, log)
	h.registerHTTP(router)
	return h
}

func (h *Handlers) registerHTTP(router *gin.Engine) {
	session := router.Group("/session")
	session.POST("/", h.createSession)
	session.GET("/", h.queryStatus)
	session.DELETE("/", h.deleteSession)
	session.PUT("/keep_alive", h.keepAlive)
	session.POST("/schedule", h.scheduleSession)
	session.GET("/details", h.sessionDetails)
	session.PUT("/details", h.updateDetails)
	session.GET("/job", h.jobInfo)
	session.GET("/log", h.sessionLog)
	router.GET("/sessions/", h.listSessions)

	admin := router.Group("/admin")
	admin.PUT("/suspend", h.suspendCreation)
	admin.PUT("/resume", h.resumeCreation)
	admin.GET("/policy", h.policy)
	admin.DELETE("/sessions", h.clearSessions)
}

// sessionID pulls the mandatory session_id query parameter. An empty value
// writes the 400 response and reports false.
func sessionID(c *gin.Context) (string, bool) {
	id := c.Query("session_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return "", false
	}
	return id, true
}

func (h *Handlers) createSession(c *gin.Context) {
	var body dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if body.Owner == "" || body.ConfigurationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner and configuration_id are required"})
		return
	}
	session, msg, err := h.engine.Create(c.Request.Context(), body.ID, body.Owner, body.ConfigurationID)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to create session")
		return
	}
	c.JSON(http.StatusCreated, dto.CreateSessionResponse{
		Session: dto.FromSession(session),
		Message: msg,
	})
}

func (h *Handlers) queryStatus(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	resp, err := h.engine.Status(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to query session status")
		return
	}
	c.JSON(resp.HTTPStatus, resp)
}

func (h *Handlers) deleteSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	msg, err := h.engine.Delete(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to delete session")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}

func (h *Handlers) keepAlive(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	msg, err := h.engine.KeepAlive(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to extend session")
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}

func (h *Handlers) scheduleSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var body dto.ScheduleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	session, msg, err := h.engine.Schedule(c.Request.Context(), id, body.Params, body.Environment)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to schedule session")
		return
	}
	c.JSON(http.StatusOK, dto.ScheduleResponse{
		Session: dto.FromSession(session),
		Message: msg,
	})
}

func (h *Handlers) sessionDetails(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.engine.Details(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to get session details")
		return
	}
	c.JSON(http.StatusOK, dto.FromSession(session))
}

func (h *Handlers) updateDetails(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var body dto.UpdateDetailsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	session, err := h.engine.UpdateDetails(c.Request.Context(), id, body.HTTPHost, body.HTTPPort)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to update session details")
		return
	}
	c.JSON(http.StatusOK, dto.FromSession(session))
}

func (h *Handlers) jobInfo(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	info, err := h.engine.JobInfo(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to get job information")
		return
	}
	c.JSON(http.StatusOK, dto.ContentsResponse{Contents: info})
}

func (h *Handlers) sessionLog(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	logText, err := h.engine.Log(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "failed to fetch session log")
		return
	}
	c.JSON(http.StatusOK, dto.ContentsResponse{Contents: logText})
}

func (h *Handlers) listSessions(c *gin.Context) {
	sessions, err := h.engine.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	resp := dto.ListSessionsResponse{
		Sessions: make([]dto.SessionDTO, 0, len(sessions)),
		Total:    len(sessions),
	}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, dto.FromSession(session))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) suspendCreation(c *gin.Context) {
	msg, err := h.engine.Suspend(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to suspend session creation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to suspend session creation"})
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}

func (h *Handlers) resumeCreation(c *gin.Context) {
	msg, err := h.engine.Resume(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to resume session creation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume session creation"})
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}

func (h *Handlers) policy(c *gin.Context) {
	policy, err := h.engine.Policy(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to get policy", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get policy"})
		return
	}
	c.JSON(http.StatusOK, dto.FromPolicy(policy))
}

func (h *Handlers) clearSessions(c *gin.Context) {
	msg, err := h.engine.Clear(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to clear sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear sessions"})
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: msg})
}
