package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/bluegrid/rrm/internal/session/repository/sqlite"
)

// Provide creates the durable repository using separate writer and reader pools.
func Provide(driver string, writer, reader *sqlx.DB) (*sqlite.Repository, func() error, error) {
	repo, err := sqlite.NewWithDB(driver, writer, reader)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
