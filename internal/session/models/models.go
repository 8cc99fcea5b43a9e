package models

import (
	"fmt"
	"time"
)

// SessionStatus tracks a session through its lifecycle. Values are persisted
// and exposed on the wire as integers and must not be renumbered.
type SessionStatus int

const (
	StatusStopped SessionStatus = iota
	StatusScheduling
	StatusScheduled
	StatusGettingHostname
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
	StatusBusy
)

// String returns the lowercase name of the status for logs and events.
func (s SessionStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusScheduling:
		return "scheduling"
	case StatusScheduled:
		return "scheduled"
	case StatusGettingHostname:
		return "getting_hostname"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusFailed:
		return "failed"
	case StatusBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// UnsetProcessPID marks a session without a locally launched process.
const UnsetProcessPID = -1

// Session is one interactive rendering session. ConfigurationID is fixed at
// creation; everything else evolves as the lifecycle advances.
type Session struct {
	ID              string        `json:"id"`
	Owner           string        `json:"owner"`
	ConfigurationID string        `json:"configuration_id"`
	Status          SessionStatus `json:"status"`
	JobID           string        `json:"job_id,omitempty"`
	ProcessPID      int           `json:"process_pid"`
	HTTPHost        string        `json:"http_host,omitempty"`
	HTTPPort        int           `json:"http_port,omitempty"`
	Created         time.Time     `json:"created"`
	ValidUntil      time.Time     `json:"valid_until"`
}

// HasJob reports whether a cluster job has been allocated for the session.
func (s *Session) HasJob() bool {
	return s.JobID != ""
}

// HasProcess reports whether the session owns a locally launched process.
func (s *Session) HasProcess() bool {
	return s.ProcessPID != UnsetProcessPID
}

// Expired reports whether the session's keep-alive horizon has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ValidUntil)
}

// GlobalPolicy is the single-row record gating session creation and supplying
// the default keep-alive horizon in seconds.
type GlobalPolicy struct {
	SessionCreationEnabled bool `json:"session_creation_enabled"`
	KeepAliveTimeout       int  `json:"keep_alive_timeout"`
}

// KeepAliveDuration returns the keep-alive horizon as a time.Duration.
func (p *GlobalPolicy) KeepAliveDuration() time.Duration {
	return time.Duration(p.KeepAliveTimeout) * time.Second
}
