package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/db/dialect"
)

// Pool provides separate read and write database connections.
//
// For SQLite with WAL mode, this enables concurrent reads while serializing
// writes through a single connection. The writer pool uses MaxOpenConns(1) to
// avoid SQLITE_BUSY on write contention, while the reader pool allows multiple
// concurrent connections for SELECT queries.
//
// For PostgreSQL, both Writer and Reader return the same *sqlx.DB since pgx
// handles connection pooling internally.
type Pool struct {
	driver string
	writer *sqlx.DB
	reader *sqlx.DB
}

// Open opens the database named by the configuration and returns a Pool.
func Open(cfg config.DatabaseConfig) (*Pool, error) {
	switch cfg.Driver {
	case dialect.SQLite3:
		writerDB, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		readerDB, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writerDB.Close()
			return nil, err
		}
		return &Pool{
			driver: dialect.SQLite3,
			writer: sqlx.NewDb(writerDB, dialect.SQLite3),
			reader: sqlx.NewDb(readerDB, dialect.SQLite3),
		}, nil
	case dialect.PGX:
		pgDB, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		shared := sqlx.NewDb(pgDB, dialect.PGX)
		return &Pool{driver: dialect.PGX, writer: shared, reader: shared}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(driver string, writer, reader *sqlx.DB) *Pool {
	return &Pool{driver: driver, writer: writer, reader: reader}
}

// Driver returns the driver name the pool was opened with.
func (p *Pool) Driver() string { return p.driver }

// Writer returns the connection pool used for INSERT, UPDATE, DELETE, and
// transactions. For SQLite this is limited to a single connection.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the connection pool used for SELECT queries. For SQLite
// this opens multiple read-only connections that can operate concurrently
// with the writer via WAL snapshots.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close closes both the writer and reader pools.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	// Avoid double-close when both pools share the same *sqlx.DB (Postgres).
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
