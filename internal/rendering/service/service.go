// Package service implements the renderer configuration operations behind the
// config REST surface.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/events/bus"
	"github.com/bluegrid/rrm/internal/rendering/models"
	"github.com/bluegrid/rrm/internal/rendering/repository"
)

type Service struct {
	repo     repository.Repository
	eventBus bus.EventBus
	logger   *logger.Logger
}

func NewService(repo repository.Repository, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "config-service")),
	}
}

// Create validates and stores a new renderer configuration. Identifiers are
// normalized to lowercase; the session engine looks them up that way.
func (s *Service) Create(ctx context.Context, cfg *models.RendererConfig) (string, error) {
	cfg.ID = normalizeID(cfg.ID)
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return "", err
	}
	s.publishConfigEvent(ctx, events.ConfigCreated, cfg)
	return fmt.Sprintf("Rendering Resource %s successfully configured", cfg.ID), nil
}

// Update replaces an existing renderer configuration.
func (s *Service) Update(ctx context.Context, cfg *models.RendererConfig) (string, error) {
	cfg.ID = normalizeID(cfg.ID)
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return "", err
	}
	s.publishConfigEvent(ctx, events.ConfigUpdated, cfg)
	return fmt.Sprintf("Rendering Resource %s successfully updated", cfg.ID), nil
}

// Delete removes a renderer configuration by id.
func (s *Service) Delete(ctx context.Context, id string) (string, error) {
	id = normalizeID(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		return "", err
	}
	s.publishConfigEvent(ctx, events.ConfigDeleted, &models.RendererConfig{ID: id})
	return "Settings successfully deleted", nil
}

// Get retrieves one renderer configuration by id.
func (s *Service) Get(ctx context.Context, id string) (*models.RendererConfig, error) {
	return s.repo.Get(ctx, normalizeID(id))
}

// List returns all renderer configurations ordered by id.
func (s *Service) List(ctx context.Context) ([]*models.RendererConfig, error) {
	return s.repo.List(ctx)
}

// Clear removes every renderer configuration.
func (s *Service) Clear(ctx context.Context) (string, error) {
	if err := s.repo.Clear(ctx); err != nil {
		return "", err
	}
	return "Settings cleared", nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (s *Service) publishConfigEvent(ctx context.Context, eventType string, cfg *models.RendererConfig) {
	if s.eventBus == nil || cfg == nil {
		return
	}
	data := map[string]interface{}{
		"config_id": cfg.ID,
	}
	subject := eventType + "." + cfg.ID
	if err := s.eventBus.Publish(ctx, subject, bus.NewEvent(eventType, "config-service", data)); err != nil {
		s.logger.Error("failed to publish config event", zap.Error(err))
	}
}
