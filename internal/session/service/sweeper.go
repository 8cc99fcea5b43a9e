package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bluegrid/rrm/internal/common/appctx"
	"github.com/bluegrid/rrm/internal/common/constants"
	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/events"
	"github.com/bluegrid/rrm/internal/session/repository"
)

// sweepConcurrency limits parallel teardowns per sweep.
const sweepConcurrency = 4

// Sweeper periodically destroys sessions whose keep-alive horizon has passed.
type Sweeper struct {
	engine   *Service
	repo     repository.Repository
	interval time.Duration
	logger   *logger.Logger

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSweeper creates a sweeper; call Start to begin sweeping.
func NewSweeper(engine *Service, repo repository.Repository, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		repo:     repo,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "session-sweeper")),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop on its own goroutine.
func (w *Sweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("sweeper started", zap.Duration("interval", w.interval))
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.logger.Info("sweeper stopped")
}

func (w *Sweeper) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep destroys every session expired at the start of the pass. Errors are
// logged per session and never abort the sweep.
func (w *Sweeper) sweep() {
	ctx, cancel := appctx.Detached(context.Background(), w.stopCh, constants.SweepTimeout)
	defer cancel()

	now := time.Now().UTC()
	expired, err := w.repo.ExpiredBefore(ctx, now)
	if err != nil {
		w.logger.Error("could not list expired sessions", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}
	w.logger.Info("sweeping expired sessions", zap.Int("count", len(expired)))

	g := new(errgroup.Group)
	g.SetLimit(sweepConcurrency)
	for _, session := range expired {
		g.Go(func() error {
			w.engine.publishSessionEvent(ctx, events.SessionExpired, session)
			if _, derr := w.engine.Delete(ctx, session.ID); derr != nil && !apperrors.IsNotFound(derr) {
				w.logger.Warn("could not delete expired session",
					zap.String("session_id", session.ID), zap.Error(derr))
			}
			return nil
		})
	}
	_ = g.Wait()
}
