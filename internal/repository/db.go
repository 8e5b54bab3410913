package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL driver in use.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupported is returned for operations a dialect cannot perform.
var ErrUnsupported = errors.New("operation not supported by this database")

// DB wraps the database connection together with its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and configures the connection pool.
func Open(dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case DialectSQLite:
		dsn = withSQLiteDefaults(dsn)
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unknown database driver %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}

	// SQLite serialises writers; the busy timeout covers contention between pool connections.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{db: db, dialect: dialect}, nil
}

// NewSQLiteDB opens a SQLite database at dbPath.
func NewSQLiteDB(dbPath string) (*DB, error) {
	return Open(DialectSQLite, dbPath)
}

func withSQLiteDefaults(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Dialect returns the SQL dialect of the connection.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(query), args...)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS watch_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	show_id INTEGER NOT NULL,
	show_title TEXT NOT NULL DEFAULT '',
	last_notified_episode INTEGER NOT NULL DEFAULT 0,
	delivery_target TEXT,
	last_checked_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(user_id, show_id)
);

CREATE TABLE IF NOT EXISTS schedule_cache (
	show_id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	total_episodes INTEGER,
	status TEXT NOT NULL DEFAULT '',
	next_episode INTEGER,
	next_airing_at INTEGER,
	cover_image TEXT NOT NULL DEFAULT '',
	site_url TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watch_entries_show ON watch_entries(show_id);
CREATE INDEX IF NOT EXISTS idx_watch_entries_user ON watch_entries(user_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS watch_entries (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	show_id INTEGER NOT NULL,
	show_title TEXT NOT NULL DEFAULT '',
	last_notified_episode INTEGER NOT NULL DEFAULT 0,
	delivery_target TEXT,
	last_checked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(user_id, show_id)
);

CREATE TABLE IF NOT EXISTS schedule_cache (
	show_id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	total_episodes INTEGER,
	status TEXT NOT NULL DEFAULT '',
	next_episode INTEGER,
	next_airing_at BIGINT,
	cover_image TEXT NOT NULL DEFAULT '',
	site_url TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watch_entries_show ON watch_entries(show_id);
CREATE INDEX IF NOT EXISTS idx_watch_entries_user ON watch_entries(user_id);
`

// InitSchema creates the database tables and runs migrations
func (d *DB) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if d.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return d.runMigrations(ctx)
}

// runMigrations brings databases created by earlier releases up to date.
func (d *DB) runMigrations(ctx context.Context) error {
	// show_title arrived after the first release
	var title sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT show_title FROM watch_entries LIMIT 1").Scan(&title)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if _, err := d.db.ExecContext(ctx, "ALTER TABLE watch_entries ADD COLUMN show_title TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("migrate show_title: %w", err)
	}
	return nil
}

// BackupTo writes a consistent copy of a SQLite database to path.
func (d *DB) BackupTo(ctx context.Context, path string) error {
	if d.dialect != DialectSQLite {
		return ErrUnsupported
	}
	if _, err := d.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
