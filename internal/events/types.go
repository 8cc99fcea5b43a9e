// Package events defines the subjects published by the session engine.
package events

// Event types for session lifecycle transitions
const (
	SessionCreated   = "session.created"
	SessionScheduled = "session.scheduled"
	SessionStarting  = "session.starting"
	SessionRunning   = "session.running"
	SessionBusy      = "session.busy"
	SessionStopped   = "session.stopped"
	SessionFailed    = "session.failed"
	SessionExpired   = "session.expired"
	SessionDeleted   = "session.deleted"
	SessionKeptAlive = "session.kept_alive"
)

// Event types for renderer configurations
const (
	ConfigCreated = "config.created"
	ConfigUpdated = "config.updated"
	ConfigDeleted = "config.deleted"
)

// Event types for administrative actions
const (
	CreationSuspended = "admin.creation_suspended"
	CreationResumed   = "admin.creation_resumed"
	SessionsCleared   = "admin.sessions_cleared"
)

// BuildSessionSubject creates a subject for a lifecycle event of one session
func BuildSessionSubject(eventType, sessionID string) string {
	return eventType + "." + sessionID
}

// BuildSessionWildcardSubject creates a wildcard subscription for all session events
func BuildSessionWildcardSubject() string {
	return "session.>"
}

// BuildConfigWildcardSubject creates a wildcard subscription for all config events
func BuildConfigWildcardSubject() string {
	return "config.>"
}

// BuildAdminWildcardSubject creates a wildcard subscription for all administrative events
func BuildAdminWildcardSubject() string {
	return "admin.>"
}
