// Package storage opens the client's local SQLite database and applies the
// embedded goose migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/wichigo/Motium-sub012/internal/client/migrations"
	"github.com/wichigo/Motium-sub012/internal/logging"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// DSN turns a file path into a modernc.org/sqlite DSN with the pragmas the
// sync engine relies on.
func DSN(path string) string {
	if path == MemoryDSN || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Option configures Open.
type Option func(*options)

type options struct {
	log logging.Logger
}

// WithLogger sends migration output to l instead of discarding it.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

func RunMigrations(ctx context.Context, db *sql.DB, log logging.Logger) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(logging.NewPrintfLogger(log))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens the database at dsn and migrates it. The pool is limited to one
// connection: SQLite serializes writers anyway, and a single connection keeps
// every transaction strictly ordered (and makes :memory: databases shared).
func Open(ctx context.Context, dsn string, opts ...Option) (*sql.DB, error) {
	o := options{log: logging.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	if err := RunMigrations(ctx, db, o.log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate local database: %w", err)
	}

	return db, nil
}
