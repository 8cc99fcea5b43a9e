package repository

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/session/models"
)

func TestMemoryRepository_InsertAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	session := testSession("f3a1")
	if err := repo.Insert(ctx, session); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Owner != "watson" || got.Status != models.StatusScheduling {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestMemoryRepository_InsertDuplicate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := repo.Insert(ctx, testSession("f3a1"))
	if !apperrors.IsConflict(err) {
		t.Errorf("expected conflict on duplicate insert, got %v", err)
	}
}

func TestMemoryRepository_GetReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.Status = models.StatusFailed

	again, err := repo.Get(ctx, "f3a1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.Status != models.StatusScheduling {
		t.Error("mutating a returned session must not affect the store")
	}
}

func TestMemoryRepository_UpdateMutator(t *testing.T) {
	repo := NewMemoryRepository()
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
	if got.JobID != "[http://sched.local]-[1447185]" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestMemoryRepository_UpdateKeepsImmutableFields(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := repo.Update(ctx, "f3a1", func(s *models.Session) error {
		s.ConfigurationID = "livre"
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got.ConfigurationID != "rtneuron" {
		t.Errorf("configuration_id must stay immutable, got %s", got.ConfigurationID)
	}
}

func TestMemoryRepository_UpdateMutatorError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, testSession("f3a1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err := repo.Update(ctx, "f3a1", func(s *models.Session) error {
		s.Status = models.StatusFailed
		return apperrors.Conflict("wrong source state")
	})
	if !apperrors.IsConflict(err) {
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

func TestMemoryRepository_ExpiredBefore(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	stale := testSession("stale")
	stale.ValidUntil = now.Add(-time.Second)
	fresh := testSession("fresh")
	fresh.ValidUntil = now.Add(time.Hour)

	if err := repo.Insert(ctx, stale); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := repo.Insert(ctx, fresh); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	expired, err := repo.ExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("expired query failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "stale" {
		t.Errorf("expected only the stale session, got %+v", expired)
	}
}

func TestMemoryRepository_PolicyLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Policy(ctx); err == nil {
		t.Error("expected error before policy initialization")
	}

	defaults := models.GlobalPolicy{SessionCreationEnabled: true, KeepAliveTimeout: 1000}
	if err := repo.EnsurePolicy(ctx, defaults); err != nil {
		t.Fatalf("ensure policy failed: %v", err)
	}
	if err := repo.EnsurePolicy(ctx, models.GlobalPolicy{KeepAliveTimeout: 5}); err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}

	policy, err := repo.Policy(ctx)
	if err != nil {
		t.Fatalf("policy read failed: %v", err)
	}
	if policy.KeepAliveTimeout != 1000 {
		t.Errorf("ensure overwrote existing policy: %+v", policy)
	}

	changed, err := repo.SetSessionCreation(ctx, false)
	if err != nil || !changed {
		t.Fatalf("expected first flip to change, got changed=%v err=%v", changed, err)
	}
	changed, err = repo.SetSessionCreation(ctx, false)
	if err != nil || changed {
		t.Fatalf("expected repeated flip to be a no-op, got changed=%v err=%v", changed, err)
	}
}
