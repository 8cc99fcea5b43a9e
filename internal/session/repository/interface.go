package repository

import (
	"context"
	"time"

	"github.com/bluegrid/rrm/internal/session/models"
)

// Repository defines the interface for session and global-policy storage.
// All writes are atomic; a partially-written record is never observable.
type Repository interface {
	// Insert stores a new session. Conflict when the id already exists.
	Insert(ctx context.Context, session *models.Session) error

	// Get retrieves a session by id. NotFound when the id is unknown.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update applies mutate to the current persisted session atomically and
	// returns the stored result. The mutator sees the freshest persisted
	// state; returning an error aborts the update without writing anything.
	// Concurrent updates to the same session never interleave. NotFound when
	// the id is unknown.
	Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)

	// Delete removes a session. NotFound when the id is unknown.
	Delete(ctx context.Context, id string) error

	// List returns all sessions ordered by creation time ascending.
	List(ctx context.Context) ([]*models.Session, error)

	// ExpiredBefore returns the sessions whose valid_until is strictly before t.
	ExpiredBefore(ctx context.Context, t time.Time) ([]*models.Session, error)

	// Clear removes all sessions.
	Clear(ctx context.Context) error

	// EnsurePolicy creates the global policy row with the given defaults when
	// none exists yet. An existing row is left untouched.
	EnsurePolicy(ctx context.Context, defaults models.GlobalPolicy) error

	// Policy returns the global policy row.
	Policy(ctx context.Context) (*models.GlobalPolicy, error)

	// SetSessionCreation flips the session-creation gate and reports whether
	// the stored value changed.
	SetSessionCreation(ctx context.Context, enabled bool) (bool, error)

	// Close closes the repository (for database connections)
	Close() error
}
