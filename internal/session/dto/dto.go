package dto

import (
	"time"

	"github.com/bluegrid/rrm/internal/session/models"
)

// SessionDTO is the wire representation of a session record. Status codes are
// integers and keep their persisted numbering.
type SessionDTO struct {
	ID              string               `json:"id"`
	Owner           string               `json:"owner"`
	ConfigurationID string               `json:"configuration_id"`
	Status          models.SessionStatus `json:"status"`
	StatusText      string               `json:"status_text"`
	JobID           string               `json:"job_id,omitempty"`
	HTTPHost        string               `json:"http_host,omitempty"`
	HTTPPort        int                  `json:"http_port,omitempty"`
	Created         time.Time            `json:"created"`
	ValidUntil      time.Time            `json:"valid_until"`
}

type CreateSessionRequest struct {
	ID              string `json:"id,omitempty"`
	Owner           string `json:"owner"`
	ConfigurationID string `json:"configuration_id"`
}

type CreateSessionResponse struct {
	Session SessionDTO `json:"session"`
	Message string     `json:"message"`
}

type ScheduleRequest struct {
	Params      []string `json:"params,omitempty"`
	Environment []string `json:"environment,omitempty"`
}

type ScheduleResponse struct {
	Session SessionDTO `json:"session"`
	Message string     `json:"message"`
}

type UpdateDetailsRequest struct {
	HTTPHost string `json:"http_host"`
	HTTPPort int    `json:"http_port"`
}

type ListSessionsResponse struct {
	Sessions []SessionDTO `json:"sessions"`
	Total    int          `json:"total"`
}

// ContentsResponse carries opaque scheduler output such as job information or
// a renderer log.
type ContentsResponse struct {
	Contents string `json:"contents"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type PolicyDTO struct {
	SessionCreationEnabled bool `json:"session_creation_enabled"`
	KeepAliveTimeout       int  `json:"keep_alive_timeout"`
}

func FromSession(session *models.Session) SessionDTO {
	return SessionDTO{
		ID:              session.ID,
		Owner:           session.Owner,
		ConfigurationID: session.ConfigurationID,
		Status:          session.Status,
		StatusText:      session.Status.String(),
		JobID:           session.JobID,
		HTTPHost:        session.HTTPHost,
		HTTPPort:        session.HTTPPort,
		Created:         session.Created,
		ValidUntil:      session.ValidUntil,
	}
}

func FromPolicy(policy *models.GlobalPolicy) PolicyDTO {
	return PolicyDTO{
		SessionCreationEnabled: policy.SessionCreationEnabled,
		KeepAliveTimeout:       policy.KeepAliveTimeout,
	}
}
