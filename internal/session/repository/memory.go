package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/session/models"
)

// MemoryRepository provides in-memory session and global-policy storage.
type MemoryRepository struct {
	sessions map[string]*models.Session
	policy   *models.GlobalPolicy
	mu       sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory session repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// Insert stores a new session
func (r *MemoryRepository) Insert(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return apperrors.Conflict(fmt.Sprintf("session '%s' already exists", session.ID))
	}
	stored := *session
	r.sessions[session.ID] = &stored
	return nil
}

// Get retrieves a session by id
func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	result := *session
	return &result, nil
}

// Update applies mutate to the stored session under the write lock, so
// concurrent updates to the same session never interleave.
func (r *MemoryRepository) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}

	updated := *session
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	// id, configuration_id and created are immutable once inserted.
	updated.ID = session.ID
	updated.ConfigurationID = session.ConfigurationID
	updated.Created = session.Created
	r.sessions[id] = &updated

	result := updated
	return &result, nil
}

// Delete removes a session by id
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return apperrors.NotFound("session", id)
	}
	delete(r.sessions, id)
	return nil
}

// List returns all sessions ordered by creation time ascending
func (r *MemoryRepository) List(ctx context.Context) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		copied := *session
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ExpiredBefore returns the sessions whose valid_until is strictly before t
func (r *MemoryRepository) ExpiredBefore(ctx context.Context, t time.Time) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Session
	for _, session := range r.sessions {
		if session.ValidUntil.Before(t) {
			copied := *session
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ValidUntil.Before(result[j].ValidUntil) })
	return result, nil
}

// Clear removes all sessions
func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[string]*models.Session)
	return nil
}

// EnsurePolicy creates the global policy with the given defaults when none
// exists yet
func (r *MemoryRepository) EnsurePolicy(ctx context.Context, defaults models.GlobalPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy == nil {
		stored := defaults
		r.policy = &stored
	}
	return nil
}

// Policy returns the global policy
func (r *MemoryRepository) Policy(ctx context.Context) (*models.GlobalPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.policy == nil {
		return nil, apperrors.InternalError("global policy not initialized", nil)
	}
	result := *r.policy
	return &result, nil
}

// SetSessionCreation flips the session-creation gate and reports whether the
// stored value changed
func (r *MemoryRepository) SetSessionCreation(ctx context.Context, enabled bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.policy == nil {
		return false, apperrors.InternalError("global policy not initialized", nil)
	}
	if r.policy.SessionCreationEnabled == enabled {
		return false, nil
	}
	r.policy.SessionCreationEnabled = enabled
	return true, nil
}
