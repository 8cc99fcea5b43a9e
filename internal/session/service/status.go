package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/renderer"
	"github.com/bluegrid/rrm/internal/scheduler"
	"github.com/bluegrid/rrm/internal/session/models"
)

// StatusResult is the engine's answer to a status query. HTTPStatus carries
// the transport hint: 200 normally, 404 when the job turned out to be gone,
// 503 when the cluster could not be reached.
type StatusResult struct {
	Session     string               `json:"session"`
	Code        models.SessionStatus `json:"code"`
	Description string               `json:"description"`
	Hostname    string               `json:"hostname"`
	Port        int                  `json:"port"`
	HTTPStatus  int                  `json:"-"`
}

// probeOutcome classifies one renderer readiness check.
type probeOutcome int

const (
	probeReady probeOutcome = iota
	probeGone
	probeBusy
)

// Status drives the session forward by at most one lifecycle stage and
// reports the result. Concurrent queries for the same session id are
// collapsed into a single pass through the state machine.
func (s *Service) Status(ctx context.Context, id string) (*StatusResult, error) {
	v, err, _ := s.flight.Do(id, func() (interface{}, error) {
		return s.queryStatus(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*StatusResult), nil
}

func (s *Service) queryStatus(ctx context.Context, id string) (*StatusResult, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("current session status",
		zap.String("session_id", id), zap.Stringer("status", session.Status))

	switch session.Status {
	case models.StatusScheduling:
		return statusResult(session, session.ConfigurationID+" is scheduled", http.StatusOK), nil
	case models.StatusScheduled, models.StatusGettingHostname:
		return s.stageHostname(ctx, session)
	case models.StatusStarting:
		return s.stageReadiness(ctx, session)
	case models.StatusRunning:
		return s.stageRunning(ctx, session)
	case models.StatusBusy:
		return s.stageBusy(ctx, session)
	case models.StatusStopping:
		return statusResult(session, session.ConfigurationID+" is terminating...", http.StatusOK), nil
	case models.StatusFailed:
		return statusResult(session, "Job allocation failed for "+session.ConfigurationID, http.StatusOK), nil
	default:
		return statusResult(session, session.ConfigurationID+" is not active", http.StatusOK), nil
	}
}

// stageHostname resolves where the scheduler placed the job. The session
// advances to starting as soon as a host is known.
func (s *Service) stageHostname(ctx context.Context, session *models.Session) (*StatusResult, error) {
	if session.HTTPHost != "" {
		return s.advanceToStarting(ctx, session)
	}

	job := jobRef(session)
	if job == nil {
		return statusResult(session, session.ConfigurationID+" is scheduled", http.StatusOK), nil
	}

	host, err := s.launcher.ResolveHost(ctx, job)
	switch {
	case errors.Is(err, scheduler.ErrJobFailed):
		if failed := s.failSession(ctx, session.ID); failed != nil {
			session = failed
		}
		return statusResult(session, "Job allocation failed for "+session.ConfigurationID, http.StatusOK), nil
	case err != nil:
		// Cluster unreachable; not a verdict on the job itself.
		s.logger.Warn("could not resolve job host",
			zap.String("session_id", session.ID), zap.Error(err))
		return statusResult(session, session.ConfigurationID+" is scheduled", http.StatusServiceUnavailable), nil
	case host == "":
		updated, uerr := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
			if cur.Status == models.StatusScheduled {
				cur.Status = models.StatusGettingHostname
			}
			return nil
		})
		if uerr != nil {
			return nil, uerr
		}
		return statusResult(updated, updated.ConfigurationID+" is scheduled", http.StatusOK), nil
	default:
		updated, uerr := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
			cur.HTTPHost = host
			if cur.Status == models.StatusScheduled || cur.Status == models.StatusGettingHostname {
				cur.Status = models.StatusStarting
			}
			return nil
		})
		if uerr != nil {
			return nil, uerr
		}
		s.publishSessionEvent(ctx, events.SessionStarting, updated)
		return statusResult(updated, updated.ConfigurationID+" is starting", http.StatusOK), nil
	}
}

func (s *Service) advanceToStarting(ctx context.Context, session *models.Session) (*StatusResult, error) {
	updated, err := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
		if cur.Status == models.StatusScheduled || cur.Status == models.StatusGettingHostname {
			cur.Status = models.StatusStarting
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishSessionEvent(ctx, events.SessionStarting, updated)
	return statusResult(updated, updated.ConfigurationID+" is starting", http.StatusOK), nil
}

// stageReadiness checks whether the renderer answers REST requests yet. A
// configuration without readiness gating goes straight to running.
func (s *Service) stageReadiness(ctx context.Context, session *models.Session) (*StatusResult, error) {
	cfg, err := s.configFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !cfg.WaitUntilRunning {
		return s.advanceToRunning(ctx, session)
	}

	outcome, degraded := s.probe(ctx, session)
	switch outcome {
	case probeReady:
		return s.advanceToRunning(ctx, session)
	case probeGone:
		return s.goneResult(ctx, session), nil
	default:
		desc := session.ConfigurationID + " is starting but the HTTP interface is not yet available"
		return statusResult(session, desc, hintStatus(degraded)), nil
	}
}

// stageRunning refreshes an expired keep-alive horizon, then verifies the
// renderer still answers.
func (s *Service) stageRunning(ctx context.Context, session *models.Session) (*StatusResult, error) {
	now := time.Now().UTC()
	if session.Expired(now) {
		policy, err := s.repo.Policy(ctx)
		if err != nil {
			return nil, err
		}
		refreshed, err := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
			cur.ValidUntil = now.Add(policy.KeepAliveDuration())
			return nil
		})
		if err != nil {
			return nil, err
		}
		session = refreshed
	}

	outcome, degraded := s.probe(ctx, session)
	switch outcome {
	case probeReady:
		return statusResult(session, session.ConfigurationID+" is up and running", http.StatusOK), nil
	case probeGone:
		return s.goneResult(ctx, session), nil
	default:
		updated, err := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
			if cur.Status == models.StatusRunning {
				cur.Status = models.StatusBusy
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.publishSessionEvent(ctx, events.SessionBusy, updated)
		return statusResult(updated, updated.ConfigurationID+" is busy", hintStatus(degraded)), nil
	}
}

// stageBusy re-probes a renderer that stopped answering; it comes back to
// running on the first successful probe.
func (s *Service) stageBusy(ctx context.Context, session *models.Session) (*StatusResult, error) {
	outcome, degraded := s.probe(ctx, session)
	switch outcome {
	case probeReady:
		return s.advanceToRunning(ctx, session)
	case probeGone:
		return s.goneResult(ctx, session), nil
	default:
		return statusResult(session, session.ConfigurationID+" is busy", hintStatus(degraded)), nil
	}
}

func (s *Service) advanceToRunning(ctx context.Context, session *models.Session) (*StatusResult, error) {
	updated, err := s.repo.Update(ctx, session.ID, func(cur *models.Session) error {
		switch cur.Status {
		case models.StatusStarting, models.StatusBusy, models.StatusRunning:
			cur.Status = models.StatusRunning
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishSessionEvent(ctx, events.SessionRunning, updated)
	return statusResult(updated, updated.ConfigurationID+" is up and running", http.StatusOK), nil
}

// probe performs one readiness check. When the renderer is unreachable, the
// scheduler is consulted: a live job means the renderer is merely busy, a
// missing or failed one means the session's resource is gone. The degraded
// flag marks outcomes based on a failed transport rather than a renderer
// answer.
func (s *Service) probe(ctx context.Context, session *models.Session) (probeOutcome, bool) {
	result, err := s.prober.CheckReadiness(ctx, session.HTTPHost, session.HTTPPort)
	if err == nil {
		switch result {
		case renderer.ProbeReady:
			return probeReady, false
		case renderer.ProbeGone:
			return probeGone, false
		default:
			return probeBusy, false
		}
	}

	s.logger.Info("renderer unreachable, checking job allocation",
		zap.String("session_id", session.ID), zap.Error(err))
	job := jobRef(session)
	if job == nil {
		return probeGone, false
	}
	host, rerr := s.launcher.ResolveHost(ctx, job)
	switch {
	case errors.Is(rerr, scheduler.ErrJobFailed):
		return probeGone, false
	case rerr != nil:
		return probeBusy, true
	case host == "":
		return probeGone, false
	default:
		return probeBusy, true
	}
}

// goneResult tears down a session whose job disappeared underneath it and
// reports the loss.
func (s *Service) goneResult(ctx context.Context, session *models.Session) *StatusResult {
	s.logger.Info("job has been cancelled, destroying session",
		zap.String("session_id", session.ID))
	if _, err := s.Delete(ctx, session.ID); err != nil && !apperrors.IsNotFound(err) {
		s.logger.Error("could not destroy session after job loss",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	return &StatusResult{
		Session:     session.ID,
		Code:        models.StatusStopped,
		Description: "Job has been cancelled",
		HTTPStatus:  http.StatusNotFound,
	}
}

func statusResult(session *models.Session, description string, httpStatus int) *StatusResult {
	return &StatusResult{
		Session:     session.ID,
		Code:        session.Status,
		Description: description,
		Hostname:    session.HTTPHost,
		Port:        session.HTTPPort,
		HTTPStatus:  httpStatus,
	}
}

func hintStatus(degraded bool) int {
	if degraded {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
