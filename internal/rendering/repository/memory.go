package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/rendering/models"
)

// MemoryRepository provides in-memory renderer configuration storage.
type MemoryRepository struct {
	configs map[string]*models.RendererConfig
	mu      sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory configuration repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		configs: make(map[string]*models.RendererConfig),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// Create stores a new configuration
func (r *MemoryRepository) Create(ctx context.Context, cfg *models.RendererConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[cfg.ID]; ok {
		return apperrors.Conflict(fmt.Sprintf("renderer config '%s' already exists", cfg.ID))
	}
	stored := *cfg
	r.configs[cfg.ID] = &stored
	return nil
}

// Update replaces every field of an existing configuration
func (r *MemoryRepository) Update(ctx context.Context, cfg *models.RendererConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[cfg.ID]; !ok {
		return apperrors.NotFound("renderer config", cfg.ID)
	}
	stored := *cfg
	r.configs[cfg.ID] = &stored
	return nil
}

// Delete removes a configuration by id
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[id]; !ok {
		return apperrors.NotFound("renderer config", id)
	}
	delete(r.configs, id)
	return nil
}

// Get retrieves a configuration by exact id
func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.RendererConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[id]
	if !ok {
		return nil, apperrors.NotFound("renderer config", id)
	}
	result := *cfg
	return &result, nil
}

// List returns all configurations ordered by id ascending
func (r *MemoryRepository) List(ctx context.Context) ([]*models.RendererConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.RendererConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		copied := *cfg
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Clear removes all configurations
func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs = make(map[string]*models.RendererConfig)
	return nil
}
