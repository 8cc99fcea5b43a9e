package repository

import (
	"context"

	"github.com/bluegrid/rrm/internal/rendering/models"
)

// Repository defines the interface for renderer configuration storage.
// All writes are atomic; a partially-written record is never observable.
type Repository interface {
	// Create stores a new configuration. Conflict when the id already exists.
	Create(ctx context.Context, cfg *models.RendererConfig) error

	// Update replaces every field of an existing configuration. NotFound when
	// the id is unknown.
	Update(ctx context.Context, cfg *models.RendererConfig) error

	// Delete removes a configuration. NotFound when the id is unknown.
	Delete(ctx context.Context, id string) error

	// Get retrieves a configuration by exact id.
	Get(ctx context.Context, id string) (*models.RendererConfig, error)

	// List returns all configurations ordered by id ascending.
	List(ctx context.Context) ([]*models.RendererConfig, error)

	// Clear removes all configurations.
	Clear(ctx context.Context) error

	// Close closes the repository (for database connections)
	Close() error
}
