// Package service implements the session lifecycle engine: the state machine
// that takes a session from creation through scheduling, hostname discovery,
// readiness probing and active service to teardown. It composes the session
// and configuration stores, the launcher and the renderer probe client.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bluegrid/rrm/internal/common/appctx"
	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/common/constants"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/common/portutil"
	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/events/bus"
	"github.com/bluegrid/rrm/internal/renderer"
	rmodels "github.com/bluegrid/rrm/internal/rendering/models"
	"github.com/bluegrid/rrm/internal/rendering/params"
	rrepository "github.com/bluegrid/rrm/internal/rendering/repository"
	"github.com/bluegrid/rrm/internal/scheduler"
	"github.com/bluegrid/rrm/internal/session/models"
	"github.com/bluegrid/rrm/internal/session/repository"
)

// Service owns every mutation of session rows. Sessions advance through the
// lifecycle only via the store's atomic read-modify-write, so two concurrent
// calls on the same session always observe a linearizable sequence of states.
type Service struct {
	repo        repository.Repository
	configs     rrepository.Repository
	launcher    scheduler.Launcher
	prober      renderer.Prober
	eventBus    bus.EventBus
	defaultPort int
	logger      *logger.Logger

	// flight collapses concurrent status queries for one session id.
	flight singleflight.Group

	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates the session engine.
func New(
	repo repository.Repository,
	configs rrepository.Repository,
	launcher scheduler.Launcher,
	prober renderer.Prober,
	eventBus bus.EventBus,
	rendererCfg config.RendererConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:        repo,
		configs:     configs,
		launcher:    launcher,
		prober:      prober,
		eventBus:    eventBus,
		defaultPort: rendererCfg.DefaultPort,
		logger:      log.WithFields(zap.String("component", "session-service")),
		stopCh:      make(chan struct{}),
	}
}

// Close releases detached teardown contexts still in flight.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

// Create inserts a new session in the scheduling state. No job is submitted
// yet; that is Schedule's responsibility. A client-supplied id is honored,
// otherwise a time-based UUID is generated.
func (s *Service) Create(ctx context.Context, id, owner, configurationID string) (*models.Session, string, error) {
	policy, err := s.repo.Policy(ctx)
	if err != nil {
		return nil, "", err
	}
	if !policy.SessionCreationEnabled {
		return nil, "", apperrors.Forbidden("Session creation is currently suspended")
	}

	if id == "" {
		generated, err := uuid.NewUUID()
		if err != nil {
			return nil, "", apperrors.InternalError("could not generate session id", err)
		}
		id = generated.String()
	}

	// Port 0 means renderers share the manager's host, so every session
	// needs its own OS-assigned port.
	port := s.defaultPort
	if port == 0 {
		port, err = portutil.AllocatePort()
		if err != nil {
			return nil, "", apperrors.InternalError("could not allocate renderer port", err)
		}
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:              id,
		Owner:           owner,
		ConfigurationID: configurationID,
		Status:          models.StatusScheduling,
		ProcessPID:      models.UnsetProcessPID,
		HTTPPort:        port,
		Created:         now,
		ValidUntil:      now.Add(policy.KeepAliveDuration()),
	}
	if err := s.repo.Insert(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("configuration_id", session.ConfigurationID),
		zap.String("owner", session.Owner))
	s.publishSessionEvent(ctx, events.SessionCreated, session)
	return session, "Session successfully created", nil
}

// Schedule submits the renderer to the launcher and moves the session to the
// scheduled state. The REST arguments come from the configuration's scheduler
// parameter template, with the schema tag derived from the configuration and
// session ids.
func (s *Service) Schedule(ctx context.Context, id string, extraParams, extraEnv []string) (*models.Session, string, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if session.Status != models.StatusScheduling {
		return nil, "", apperrors.Conflict(fmt.Sprintf("session %s already has a job scheduled", id))
	}

	cfg, err := s.configFor(ctx, session)
	if err != nil {
		return nil, "", err
	}

	commandLine := strings.Fields(cfg.CommandLine)
	if len(commandLine) == 0 {
		return nil, "", apperrors.InvalidArgument(
			fmt.Sprintf("configuration %s has an empty command line", cfg.ID))
	}

	schema := "rest" + cfg.ID + session.ID
	rest := params.Format(cfg.SchedulerRestParametersFormat,
		session.HTTPHost, strconv.Itoa(session.HTTPPort), schema)

	arguments := append(commandLine[1:], strings.Fields(rest)...)
	arguments = append(arguments, extraParams...)
	environment := append(strings.Fields(cfg.EnvironmentVariables), extraEnv...)

	req := &scheduler.SubmitRequest{
		SessionID:   session.ID,
		Executable:  commandLine[0],
		Arguments:   arguments,
		Environment: environment,
		Modules:     strings.Fields(cfg.Modules),
		Port:        session.HTTPPort,
	}
	s.logger.Info("scheduling job",
		zap.String("session_id", session.ID),
		zap.String("executable", req.Executable),
		zap.Strings("arguments", req.Arguments))

	job, err := s.launcher.Submit(ctx, req)
	if err != nil {
		s.failSession(ctx, session.ID)
		return nil, "", err
	}

	updated, err := s.repo.Update(ctx, id, func(cur *models.Session) error {
		if cur.Status != models.StatusScheduling {
			return apperrors.Conflict(fmt.Sprintf("session %s already has a job scheduled", id))
		}
		cur.JobID = job.ID
		if job.PID > 0 {
			cur.ProcessPID = job.PID
		}
		cur.Status = models.StatusScheduled
		return nil
	})
	if err != nil {
		// A concurrent schedule won the row; this submission is orphaned.
		if apperrors.IsConflict(err) {
			if kerr := s.launcher.Kill(ctx, job); kerr != nil {
				s.logger.Error("could not kill orphaned job", zap.Error(kerr))
			}
		}
		return nil, "", err
	}

	s.publishSessionEvent(ctx, events.SessionScheduled, updated)
	return updated, fmt.Sprintf("Job %s now scheduled", jobLabel(job)), nil
}

// KeepAlive pushes the session's expiration horizon forward. It never
// advances the lifecycle.
func (s *Service) KeepAlive(ctx context.Context, id string) (string, error) {
	policy, err := s.repo.Policy(ctx)
	if err != nil {
		return "", err
	}
	session, err := s.repo.Update(ctx, id, func(cur *models.Session) error {
		cur.ValidUntil = time.Now().UTC().Add(policy.KeepAliveDuration())
		return nil
	})
	if err != nil {
		return "", err
	}
	s.publishSessionEvent(ctx, events.SessionKeptAlive, session)
	return fmt.Sprintf("Session %s successfully updated", id), nil
}

// Delete tears the session down: mark it stopping, cancel the job with kill
// as fallback, then remove the row. Launcher errors are logged but never
// block row removal, so deletion is idempotent from the client's view.
func (s *Service) Delete(ctx context.Context, id string) (string, error) {
	session, err := s.repo.Update(ctx, id, func(cur *models.Session) error {
		cur.Status = models.StatusStopping
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("removing session", zap.String("session_id", id))

	// Teardown must finish even when the client goes away mid-request.
	dctx, cancel := appctx.Detached(ctx, s.stopCh, constants.SessionTeardownTimeout)
	defer cancel()

	if job := jobRef(session); job != nil {
		gracefulExit := false
		if cfg, cerr := s.configFor(dctx, session); cerr == nil {
			gracefulExit = cfg.GracefulExit
		}
		opts := scheduler.CancelOptions{
			Host:         session.HTTPHost,
			Port:         session.HTTPPort,
			GracefulExit: gracefulExit,
		}
		if cerr := s.launcher.Cancel(dctx, job, opts); cerr != nil {
			s.logger.Warn("job cancellation failed, killing",
				zap.String("session_id", id), zap.Error(cerr))
			if kerr := s.launcher.Kill(dctx, job); kerr != nil {
				s.logger.Error("job kill failed",
					zap.String("session_id", id), zap.Error(kerr))
			}
		}
	}

	if derr := s.repo.Delete(ctx, id); derr != nil && !apperrors.IsNotFound(derr) {
		return "", derr
	}
	s.publishSessionEvent(ctx, events.SessionDeleted, session)
	return "Session successfully destroyed", nil
}

// List returns every session ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*models.Session, error) {
	return s.repo.List(ctx)
}

// Details returns the full session record.
func (s *Service) Details(ctx context.Context, id string) (*models.Session, error) {
	return s.repo.Get(ctx, id)
}

// UpdateDetails attaches an externally managed renderer endpoint to the
// session. The next status query observes the host and advances.
func (s *Service) UpdateDetails(ctx context.Context, id, host string, port int) (*models.Session, error) {
	if strings.TrimSpace(host) == "" {
		return nil, apperrors.ValidationError("http_host", "must not be empty")
	}
	if port <= 0 {
		return nil, apperrors.ValidationError("http_port", "must be a positive port number")
	}
	return s.repo.Update(ctx, id, func(cur *models.Session) error {
		cur.HTTPHost = host
		cur.HTTPPort = port
		return nil
	})
}

// JobInfo returns the scheduler's raw description of the session's job.
func (s *Service) JobInfo(ctx context.Context, id string) (string, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	job := jobRef(session)
	if job == nil {
		return "", apperrors.InvalidArgument(fmt.Sprintf("session %s has no job allocated", id))
	}
	return s.launcher.JobInfo(ctx, job)
}

// Log returns the renderer's error log fetched through the launcher.
func (s *Service) Log(ctx context.Context, id string) (string, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	job := jobRef(session)
	if job == nil {
		return "", apperrors.InvalidArgument(fmt.Sprintf("session %s has no job allocated", id))
	}
	cfg, err := s.configFor(ctx, session)
	if err != nil {
		return "", err
	}
	return s.launcher.FetchLog(ctx, job, cfg.Executable())
}

// failSession moves the session to the failed state unless it already reached
// a terminal one. Returns the stored session, or nil when the row could not
// be updated.
func (s *Service) failSession(ctx context.Context, id string) *models.Session {
	session, err := s.repo.Update(ctx, id, func(cur *models.Session) error {
		switch cur.Status {
		case models.StatusStopped, models.StatusStopping, models.StatusFailed:
			return nil
		}
		cur.Status = models.StatusFailed
		return nil
	})
	if err != nil {
		s.logger.Error("could not mark session as failed",
			zap.String("session_id", id), zap.Error(err))
		return nil
	}
	s.publishSessionEvent(ctx, events.SessionFailed, session)
	return session
}

func (s *Service) configFor(ctx context.Context, session *models.Session) (*rmodels.RendererConfig, error) {
	return s.configs.Get(ctx, strings.ToLower(session.ConfigurationID))
}

func (s *Service) publishSessionEvent(ctx context.Context, eventType string, session *models.Session) {
	if s.eventBus == nil {
		return
	}
	data := map[string]interface{}{
		"session_id":       session.ID,
		"configuration_id": session.ConfigurationID,
		"owner":            session.Owner,
		"status":           session.Status.String(),
	}
	subject := events.BuildSessionSubject(eventType, session.ID)
	if err := s.eventBus.Publish(ctx, subject, bus.NewEvent(eventType, "session-service", data)); err != nil {
		s.logger.Error("failed to publish session event",
			zap.String("event", eventType), zap.Error(err))
	}
}

// jobRef builds the launcher's job reference for the session, or nil when
// nothing has been launched yet.
func jobRef(session *models.Session) *scheduler.Job {
	if !session.HasJob() && !session.HasProcess() {
		return nil
	}
	return &scheduler.Job{ID: session.JobID, PID: session.ProcessPID}
}

func jobLabel(job *scheduler.Job) string {
	if job.ID != "" {
		return job.ID
	}
	return strconv.Itoa(job.PID)
}
