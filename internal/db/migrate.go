package db

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bluegrid/rrm/internal/db/dialect"
)

// EnsureColumn adds a column to a table if it doesn't exist. Used for
// idempotent schema upgrades alongside CREATE TABLE IF NOT EXISTS.
func EnsureColumn(db *sqlx.DB, driver, table, column, definition string) error {
	exists, err := columnExists(db, driver, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	_, err = db.Exec(query)
	return err
}

func columnExists(db *sqlx.DB, driver, table, column string) (bool, error) {
	if dialect.IsPostgres(driver) {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(1) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`,
			table, column,
		).Scan(&count)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}

	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var defaultValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
