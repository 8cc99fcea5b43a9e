// Package sqlite provides the durable renderer configuration store backed by
// SQLite or PostgreSQL through the shared connection pool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/db"
	"github.com/bluegrid/rrm/internal/db/dialect"
	"github.com/bluegrid/rrm/internal/rendering/models"
)

// Repository provides durable renderer configuration storage operations.
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

// initSchema creates the renderer_configs table if it doesn't exist
func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS renderer_configs (
		id TEXT PRIMARY KEY,
		command_line TEXT NOT NULL,
		environment_variables TEXT NOT NULL DEFAULT '',
		modules TEXT NOT NULL DEFAULT '',
		process_rest_parameters_format TEXT NOT NULL DEFAULT '',
		scheduler_rest_parameters_format TEXT NOT NULL DEFAULT '',
		graceful_exit INTEGER NOT NULL DEFAULT 1
	);
	`)
	if err != nil {
		return err
	}
	// Readiness gating arrived after the original schema; older databases
	// lack the column.
	return db.EnsureColumn(r.db, r.driver, "renderer_configs", "wait_until_running", "INTEGER NOT NULL DEFAULT 0")
}

// Create stores a new configuration. Conflict when the id already exists.
func (r *Repository) Create(ctx context.Context, cfg *models.RendererConfig) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO renderer_configs (
			id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), cfg.ID, cfg.CommandLine, cfg.EnvironmentVariables, cfg.Modules,
		cfg.ProcessRestParametersFormat, cfg.SchedulerRestParametersFormat,
		dialect.BoolToInt(cfg.GracefulExit), dialect.BoolToInt(cfg.WaitUntilRunning))
	if err != nil {
		return apperrors.InternalError("failed to store renderer config", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Conflict(fmt.Sprintf("renderer config '%s' already exists", cfg.ID))
	}
	return nil
}

// Update replaces every field of an existing configuration.
func (r *Repository) Update(ctx context.Context, cfg *models.RendererConfig) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE renderer_configs SET
			command_line = ?, environment_variables = ?, modules = ?,
			process_rest_parameters_format = ?, scheduler_rest_parameters_format = ?,
			graceful_exit = ?, wait_until_running = ?
		WHERE id = ?
	`), cfg.CommandLine, cfg.EnvironmentVariables, cfg.Modules,
		cfg.ProcessRestParametersFormat, cfg.SchedulerRestParametersFormat,
		dialect.BoolToInt(cfg.GracefulExit), dialect.BoolToInt(cfg.WaitUntilRunning), cfg.ID)
	if err != nil {
		return apperrors.InternalError("failed to update renderer config", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("renderer config", cfg.ID)
	}
	return nil
}

// Delete removes a configuration by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM renderer_configs WHERE id = ?`), id)
	if err != nil {
		return apperrors.InternalError("failed to delete renderer config", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.NotFound("renderer config", id)
	}
	return nil
}

// Get retrieves a configuration by exact id.
func (r *Repository) Get(ctx context.Context, id string) (*models.RendererConfig, error) {
	cfg := &models.RendererConfig{}

	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		FROM renderer_configs WHERE id = ?
	`), id).Scan(&cfg.ID, &cfg.CommandLine, &cfg.EnvironmentVariables, &cfg.Modules,
		&cfg.ProcessRestParametersFormat, &cfg.SchedulerRestParametersFormat,
		&cfg.GracefulExit, &cfg.WaitUntilRunning)

	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("renderer config", id)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to read renderer config", err)
	}
	return cfg, nil
}

// List returns all configurations ordered by id ascending.
func (r *Repository) List(ctx context.Context) ([]*models.RendererConfig, error) {
	rows, err := r.ro.QueryContext(ctx, `
		SELECT id, command_line, environment_variables, modules,
			process_rest_parameters_format, scheduler_rest_parameters_format,
			graceful_exit, wait_until_running
		FROM renderer_configs ORDER BY id ASC
	`)
	if err != nil {
		return nil, apperrors.InternalError("failed to list renderer configs", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.RendererConfig
	for rows.Next() {
		cfg := &models.RendererConfig{}
		err := rows.Scan(&cfg.ID, &cfg.CommandLine, &cfg.EnvironmentVariables, &cfg.Modules,
			&cfg.ProcessRestParametersFormat, &cfg.SchedulerRestParametersFormat,
			&cfg.GracefulExit, &cfg.WaitUntilRunning)
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

// Clear removes all configurations.
func (r *Repository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM renderer_configs`); err != nil {
		return apperrors.InternalError("failed to clear renderer configs", err)
	}
	return nil
}
