package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
	"github.com/bluegrid/rrm/internal/session/models"
)

func TestSweeperDestroysExpiredSessions(t *testing.T) {
	f := newFixture(t)
	f.seedConfig(t, true)
	ctx := context.Background()

	f.insertSession(t, &models.Session{
		ID: "expired", Owner: "watson", ConfigurationID: "rtneuron",
		Status: models.StatusRunning, JobID: "[x]-[1]",
		HTTPHost: "bbpviz123", HTTPPort: 3000,
		ValidUntil: time.Now().UTC().Add(-time.Minute),
	})
	f.insertSession(t, &models.Session{
		ID: "alive", Owner: "watson", ConfigurationID: "rtneuron",
		Status: models.StatusRunning, JobID: "[x]-[2]",
		HTTPHost: "bbpviz124", HTTPPort: 3000,
		ValidUntil: time.Now().UTC().Add(10 * time.Minute),
	})

	sweeper := NewSweeper(f.svc, f.repo, 20*time.Millisecond, logger.Default())
	sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		_, err := f.repo.Get(ctx, "expired")
		return apperrors.IsNotFound(err)
	}, 2*time.Second, 10*time.Millisecond, "expired session should be destroyed")

	_, err := f.repo.Get(ctx, "alive")
	assert.NoError(t, err)

	// The expired session's job was cancelled through the launcher.
	f.launcher.mu.Lock()
	cancels := len(f.launcher.cancels)
	f.launcher.mu.Unlock()
	assert.Equal(t, 1, cancels)
}

func TestSweeperKeepsQuietWhenNothingExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, "fresh", "watson", "rtneuron")
	require.NoError(t, err)

	sweeper := NewSweeper(f.svc, f.repo, 10*time.Millisecond, logger.Default())
	sweeper.Start()
	time.Sleep(50 * time.Millisecond)
	sweeper.Stop()

	_, err = f.repo.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	f := newFixture(t)

	sweeper := NewSweeper(f.svc, f.repo, time.Hour, logger.Default())
	sweeper.Start()
	sweeper.Stop()
	sweeper.Stop()
}
