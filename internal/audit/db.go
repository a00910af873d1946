// Package audit records permission-resolution denials and upstream
// lifecycle transitions to an embedded sqlite3 database. It is purely
// additive observability: nothing here is consulted by the resolver or
// the upstream registry, so its presence or absence cannot change their
// documented behavior.
package audit

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/dsbroker/broker/pkg/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3drv "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

//go:embed migrations/sqlite3/*.sql
var migrationFiles embed.FS

var driverRegistered bool

// Log wraps the sqlite3 connection the audit log writes to.
type Log struct {
	db *sqlx.DB
}

// Open connects to the sqlite3 database at dsn, registering a hook-wrapped
// driver for query logging, and migrates it to the latest schema.
func Open(dsn string) (*Log, error) {
	if !driverRegistered {
		sql.Register("sqlite3WithAuditHooks", sqlhooks.Wrap(&sqlite3drv.SQLiteDriver{}, queryHooks{}))
		driverRegistered = true
	}

	db, err := sqlx.Open("sqlite3WithAuditHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 does not benefit from more

	if err := migrate_(db.DB, dsn); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func migrate_(db *sql.DB, dsn string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("audit: migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("audit: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("audit: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("audit: applying migrations to %s: %w", dsn, err)
	}
	log.Infof("audit: database %s up to date", dsn)
	return nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
