package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver accepts the common aliases for both drivers.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx", "pgsql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", s)
	}
}

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:grades.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/grades?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return db, nil
}

// EnsureSchema applies the idempotent schema for driver.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS rollup_sets (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  version INTEGER NOT NULL,
  fetched_at INTEGER NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS outcome_rollups (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  outcome_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  average REAL NOT NULL,
  did_drop_worst BOOLEAN NOT NULL DEFAULT 0,
  PRIMARY KEY (student_id, course_id, outcome_id),
  FOREIGN KEY (student_id, course_id) REFERENCES rollup_sets(student_id, course_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rollup_sync_status (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS grade_snapshots (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  grade TEXT NOT NULL,
  lowest_score REAL,
  lowest_counted_score REAL,
  rollup_version INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS grade_snapshots_by_version
  ON grade_snapshots (student_id, course_id, rollup_version);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS rollup_sets (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  version BIGINT NOT NULL,
  fetched_at BIGINT NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS outcome_rollups (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  outcome_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  average DOUBLE PRECISION NOT NULL,
  did_drop_worst BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (student_id, course_id, outcome_id),
  FOREIGN KEY (student_id, course_id) REFERENCES rollup_sets(student_id, course_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rollup_sync_status (
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries INT NOT NULL DEFAULT 0,
  last_error TEXT,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS grade_snapshots (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL,
  grade TEXT NOT NULL,
  lowest_score DOUBLE PRECISION,
  lowest_counted_score DOUBLE PRECISION,
  rollup_version BIGINT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS grade_snapshots_by_version
  ON grade_snapshots (student_id, course_id, rollup_version);
`
