// Package store persists sources, staging rows and production articles in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	tableSources    = "news_sources"
	tableStaging    = "news_articles_staging"
	tableProduction = "news_articles"
)

// timeLayout is fixed width so lexical order matches chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDuplicate is returned when an insert collides with an existing production article
var ErrDuplicate = errors.New("duplicate article")

// ErrNotFound is returned when an update targets a missing row
var ErrNotFound = errors.New("not found")

// Store wraps the pipeline database
type Store struct {
	db  *sql.DB
	sql sq.StatementBuilderType
	now func() time.Time
}

// Open opens (or creates) the database at path and applies migrations
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{
		db:  db,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS news_sources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'rss',
			default_category TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS news_articles_staging (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			published_fallback INTEGER NOT NULL DEFAULT 0,
			has_valid_description INTEGER NOT NULL DEFAULT 0,
			is_processed INTEGER NOT NULL DEFAULT 0,
			cached_content_url TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS news_articles (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			cached_content_url TEXT NOT NULL DEFAULT '',
			cached_image_url TEXT NOT NULL DEFAULT '',
			cache_updated_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_staging_pending ON news_articles_staging(is_processed, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_staging_run ON news_articles_staging(run_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_title_source ON news_articles(title, source);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_url ON news_articles(url) WHERE url <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source_created ON news_articles(source, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published ON news_articles(published_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) exists(ctx context.Context, table string, where sq.Sqlizer) (bool, error) {
	query, args, err := s.sql.Select("1").From(table).Where(where).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", v, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
