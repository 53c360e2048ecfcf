// Package database keeps the export job log in PostgreSQL or SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var (
	ErrBadQuery = errors.New("bad query")
	ErrNotFound = errors.New("export job not found")
)

func builder(d Dialect) sq.StatementBuilderType {
	if d == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Open connects to PostgreSQL when databaseURL is set and otherwise to the
// SQLite file at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (*sql.DB, Dialect, error) {
	if databaseURL != "" {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, "", fmt.Errorf("failed to ping database: %w", err)
		}
		return db, DialectPostgres, nil
	}

	if sqlitePath == "" {
		return nil, "", errors.New("no database configured")
	}
	if dir := filepath.Dir(sqlitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, "", fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return db, DialectSQLite, nil
}
