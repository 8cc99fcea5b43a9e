package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/events/bus"
	"github.com/bluegrid/rrm/internal/session/models"
)

// Suspend stops accepting new sessions. Existing sessions are unaffected.
// Idempotent; the message reports whether anything changed.
func (s *Service) Suspend(ctx context.Context) (string, error) {
	changed, err := s.repo.SetSessionCreation(ctx, false)
	if err != nil {
		return "", err
	}
	if !changed {
		return "Session creation already suspended", nil
	}
	s.publishAdminEvent(ctx, events.CreationSuspended)
	return "Creation of new session now suspended", nil
}

// Resume re-enables session creation. Idempotent.
func (s *Service) Resume(ctx context.Context) (string, error) {
	changed, err := s.repo.SetSessionCreation(ctx, true)
	if err != nil {
		return "", err
	}
	if !changed {
		return "Session creation already resumed", nil
	}
	s.publishAdminEvent(ctx, events.CreationResumed)
	return "Creation of new session now resumed", nil
}

// Policy returns the global session policy.
func (s *Service) Policy(ctx context.Context) (*models.GlobalPolicy, error) {
	return s.repo.Policy(ctx)
}

// Clear drops every session row without tearing down jobs. Administrative
// escape hatch for a store that went out of sync with the cluster.
func (s *Service) Clear(ctx context.Context) (string, error) {
	if err := s.repo.Clear(ctx); err != nil {
		return "", err
	}
	s.publishAdminEvent(ctx, events.SessionsCleared)
	return "Sessions cleared", nil
}

func (s *Service) publishAdminEvent(ctx context.Context, eventType string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, "session-service", nil)); err != nil {
		s.logger.Error("failed to publish admin event", zap.String("event", eventType), zap.Error(err))
	}
}
