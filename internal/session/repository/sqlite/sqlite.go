// Package sqlite provides the durable session store backed by SQLite or
// PostgreSQL through the shared connection pool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/db/dialect"
	"github.com/bluegrid/rrm/internal/session/models"
)

const sessionColumns = `id, owner, configuration_id, status, job_id, process_pid,
	http_host, http_port, created, valid_until`

// Repository provides durable session and global-policy storage operations.
type Repository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	driver string
	ownsDB bool
}

// NewWithDB creates a repository with existing database connections (shared ownership).
func NewWithDB(driver string, writer, reader *sqlx.DB) (*Repository, error) {
	return newRepository(driver, writer, reader, false)
}

func newRepository(driver string, writer, reader *sqlx.DB, ownsDB bool) (*Repository, error) {
	repo := &Repository{db: writer, ro: reader, driver: driver, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			if closeErr := writer.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

// initSchema creates the sessions and global_policy tables if they don't exist
func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		configuration_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		process_pid INTEGER NOT NULL DEFAULT -1,
		http_host TEXT NOT NULL DEFAULT '',
		http_port INTEGER NOT NULL DEFAULT 0,
		created TIMESTAMP NOT NULL,
		valid_until TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_valid_until ON sessions(valid_until);
	CREATE TABLE IF NOT EXISTS global_policy (
		id INTEGER PRIMARY KEY,
		session_creation_enabled INTEGER NOT NULL DEFAULT 1,
		keep_alive_timeout INTEGER NOT NULL
	);
	`)
	return err
}

// Insert stores a new session. Conflict when the id already exists.
func (r *Repository) Insert(ctx context.Context, session *models.Session) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sessions (
			id, owner, configuration_id, status, job_id, process_pid,
			http_host, http_port, created, valid_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), session.ID, session.Owner, session.ConfigurationID, int(session.Status),
		session.JobID, session.ProcessPID, session.HTTPHost, session.HTTPPort,
		session.Created.UTC(), session.ValidUntil.UTC())
	if err != nil {
		return apperrors.InternalError("failed to store session", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Conflict(fmt.Sprintf("session '%s' already exists", session.ID))
	}
	return nil
}

// Get retrieves a session by id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Session, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT `+sessionColumns+` FROM sessions WHERE id = ?
	`), id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("session", id)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to read session", err)
	}
	return session, nil
}

// Update applies mutate to the current persisted session atomically. The row
// is re-read inside the transaction so concurrent updates never interleave;
// SQLite serializes through the single writer connection, PostgreSQL through
// a row lock.
func (r *Repository) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.InternalError("failed to begin session update", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if dialect.IsPostgres(r.driver) {
		query += ` FOR UPDATE`
	}
	session, err := scanSession(tx.QueryRowContext(ctx, tx.Rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("session", id)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to read session", err)
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	// id, configuration_id and created are immutable once inserted.
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE sessions SET
			owner = ?, status = ?, job_id = ?, process_pid = ?,
			http_host = ?, http_port = ?, valid_until = ?
		WHERE id = ?
	`), session.Owner, int(session.Status), session.JobID, session.ProcessPID,
		session.HTTPHost, session.HTTPPort, session.ValidUntil.UTC(), id)
	if err != nil {
		return nil, apperrors.InternalError("failed to update session", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.InternalError("failed to commit session update", err)
	}
	return session, nil
}

// Delete removes a session by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return apperrors.InternalError("failed to delete session", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("session", id)
	}
	return nil
}

// List returns all sessions ordered by creation time ascending.
func (r *Repository) List(ctx context.Context) ([]*models.Session, error) {
	return r.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions ORDER BY created ASC, id ASC
	`)
}

// ExpiredBefore returns the sessions whose valid_until is strictly before t.
func (r *Repository) ExpiredBefore(ctx context.Context, t time.Time) ([]*models.Session, error) {
	return r.querySessions(ctx, r.ro.Rebind(`
		SELECT `+sessionColumns+` FROM sessions WHERE valid_until < ? ORDER BY valid_until ASC
	`), t.UTC())
}

func (r *Repository) querySessions(ctx context.Context, query string, args ...interface{}) ([]*models.Session, error) {
	rows, err := r.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.InternalError("failed to list sessions", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

// Clear removes all sessions.
func (r *Repository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return apperrors.InternalError("failed to clear sessions", err)
	}
	return nil
}

// EnsurePolicy creates the global policy row with the given defaults when none
// exists yet.
func (r *Repository) EnsurePolicy(ctx context.Context, defaults models.GlobalPolicy) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO global_policy (id, session_creation_enabled, keep_alive_timeout)
		VALUES (0, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), dialect.BoolToInt(defaults.SessionCreationEnabled), defaults.KeepAliveTimeout)
	if err != nil {
		return apperrors.InternalError("failed to initialize global policy", err)
	}
	return nil
}

// Policy returns the global policy row.
func (r *Repository) Policy(ctx context.Context) (*models.GlobalPolicy, error) {
	policy := &models.GlobalPolicy{}
	err := r.ro.QueryRowContext(ctx, `
		SELECT session_creation_enabled, keep_alive_timeout FROM global_policy WHERE id = 0
	`).Scan(&policy.SessionCreationEnabled, &policy.KeepAliveTimeout)
	if err == sql.ErrNoRows {
		return nil, apperrors.InternalError("global policy row missing", err)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to read global policy", err)
	}
	return policy, nil
}

// SetSessionCreation flips the session-creation gate and reports whether the
// stored value changed.
func (r *Repository) SetSessionCreation(ctx context.Context, enabled bool) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE global_policy SET session_creation_enabled = ?
		WHERE id = 0 AND session_creation_enabled <> ?
	`), dialect.BoolToInt(enabled), dialect.BoolToInt(enabled))
	if err != nil {
		return false, apperrors.InternalError("failed to update global policy", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*models.Session, error) {
	session := &models.Session{}
	var status int
	err := row.Scan(&session.ID, &session.Owner, &session.ConfigurationID, &status,
		&session.JobID, &session.ProcessPID, &session.HTTPHost, &session.HTTPPort,
		&session.Created, &session.ValidUntil)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	return session, nil
}
