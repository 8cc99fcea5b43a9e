package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/db"
	"github.com/bluegrid/rrm/internal/db/dialect"
	"github.com/bluegrid/rrm/internal/session/models"
	"github.com/bluegrid/rrm/internal/session/repository/sqlite"
)

func createTestSQLiteRepo(t *testing.T) (*sqlite.Repository, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	dbConn, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open SQLite database: %v", err)
	}
	sqlxDB := sqlx.NewDb(dbConn, dialect.SQLite3)
	repo, err := sqlite.NewWithDB(dialect.SQLite3, sqlxDB, sqlxDB)
	if err != nil {
		t.Fatalf("failed to create SQLite repository: %v", err)
	}

	cleanup := func() {
		if err := sqlxDB.Close(); err != nil {
			t.Errorf("failed to close sqlite db: %v", err)
		}
	}

	return repo, cleanup
}

func testSession(id string) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:              id,
		Owner:           "watson",
		ConfigurationID: "rtneuron",
		Status:          models.StatusScheduling,
		ProcessPID:      models.UnsetProcessPID,
		HTTPPort:        3000,
		Created:         now,
		ValidUntil:      now.Add(1000 * time.Second),
	}
}

func TestSQLiteRepository_InsertAndGet(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := testSession("f3a1")
	if err := repo.Insert(ctx, session); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Owner != "watson" || got.ConfigurationID != "rtneuron" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Status != models.StatusScheduling {
		t.Errorf("expected scheduling status, got %v", got.Status)
	}
	if got.ProcessPID != models.UnsetProcessPID {
		t.Errorf("expected unset pid, got %d", got.ProcessPID)
	}
	if !got.Created.Equal(session.Created) {
		t.Errorf("created drifted: got %v, want %v", got.Created, session.Created)
	}
	if !got.ValidUntil.Equal(session.ValidUntil) {
		t.Errorf("valid_until drifted: got %v, want %v", got.ValidUntil, session.ValidUntil)
	}
}

func TestSQLiteRepository_InsertDuplicate(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := repo.Insert(ctx, testSession("f3a1"))
	if !apperrors.IsConflict(err) {
		t.Errorf("expected conflict on duplicate insert, got %v", err)
	}
}

func TestSQLiteRepository_GetUnknown(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()

	_, err := repo.Get(context.Background(), "ghost")
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSQLiteRepository_UpdateMutator(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	updated, err := repo.Update(ctx, "f3a1", func(s *models.Session) error {
		s.Status = models.StatusScheduled
		s.JobID = "[http://sched.local]-[1447185]"
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != models.StatusScheduled {
		t.Errorf("returned session not updated: %v", updated.Status)
	}

	got, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.StatusScheduled || got.JobID != "[http://sched.local]-[1447185]" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestSQLiteRepository_UpdateMutatorError(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	boom := errors.New("wrong source state")
	_, err := repo.Update(ctx, "f3a1", func(s *models.Session) error {
		s.Status = models.StatusFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	got, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.StatusScheduling {
		t.Errorf("aborted update must not persist, got status %v", got.Status)
	}
}

func TestSQLiteRepository_UpdateUnknown(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()

	_, err := repo.Update(context.Background(), "ghost", func(s *models.Session) error { return nil })
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSQLiteRepository_DeleteTwice(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.Delete(ctx, "f3a1"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	err := repo.Delete(ctx, "f3a1")
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestSQLiteRepository_ListOrdersByCreation(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC()
	newer := testSession("bbbb")
	newer.Created = base.Add(time.Minute)
	older := testSession("aaaa")
	older.Created = base

	if err := repo.Insert(ctx, newer); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.Insert(ctx, older); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	sessions, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "aaaa" || sessions[1].ID != "bbbb" {
		t.Errorf("expected [aaaa bbbb], got [%s %s]", sessions[0].ID, sessions[1].ID)
	}
}

func TestSQLiteRepository_ExpiredBefore(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	stale := testSession("stale")
	stale.ValidUntil = now.Add(-10 * time.Second)
	staler := testSession("staler")
	staler.ValidUntil = now.Add(-time.Hour)
	fresh := testSession("fresh")
	fresh.ValidUntil = now.Add(time.Hour)

	for _, s := range []*models.Session{stale, staler, fresh} {
		if err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	expired, err := repo.ExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("expired query failed: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired sessions, got %d", len(expired))
	}
	if expired[0].ID != "staler" || expired[1].ID != "stale" {
		t.Errorf("expected oldest first, got [%s %s]", expired[0].ID, expired[1].ID)
	}
}

func TestSQLiteRepository_ClearKeepsPolicy(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	defaults := models.GlobalPolicy{SessionCreationEnabled: true, KeepAliveTimeout: 1000}
	if err := repo.EnsurePolicy(ctx, defaults); err != nil {
		t.Fatalf("ensure policy failed: %v", err)
	}
	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	sessions, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty list after clear, got %d", len(sessions))
	}
	policy, err := repo.Policy(ctx)
	if err != nil {
		t.Fatalf("policy read failed: %v", err)
	}
	if !policy.SessionCreationEnabled || policy.KeepAliveTimeout != 1000 {
		t.Errorf("policy must survive session clear: %+v", policy)
	}
}

func TestSQLiteRepository_PolicyLifecycle(t *testing.T) {
	repo, cleanup := createTestSQLiteRepo(t)
	defer cleanup()
	ctx := context.Background()

	defaults := models.GlobalPolicy{SessionCreationEnabled: true, KeepAliveTimeout: 1000}
	if err := repo.EnsurePolicy(ctx, defaults); err != nil {
		t.Fatalf("ensure policy failed: %v", err)
	}

	// A second ensure with different defaults must not overwrite the row.
	other := models.GlobalPolicy{SessionCreationEnabled: false, KeepAliveTimeout: 5}
	if err := repo.EnsurePolicy(ctx, other); err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	policy, err := repo.Policy(ctx)
	if err != nil {
		t.Fatalf("policy read failed: %v", err)
	}
	if !policy.SessionCreationEnabled || policy.KeepAliveTimeout != 1000 {
		t.Errorf("ensure overwrote existing policy: %+v", policy)
	}

	changed, err := repo.SetSessionCreation(ctx, false)
	if err != nil {
		t.Fatalf("set session creation failed: %v", err)
	}
	if !changed {
		t.Error("expected first flip to report a change")
	}
	changed, err = repo.SetSessionCreation(ctx, false)
	if err != nil {
		t.Fatalf("second set failed: %v", err)
	}
	if changed {
		t.Error("expected repeated flip to report no change")
	}

	policy, err = repo.Policy(ctx)
	if err != nil {
		t.Fatalf("policy read failed: %v", err)
	}
	if policy.SessionCreationEnabled {
		t.Error("session creation gate not persisted")
	}
}
