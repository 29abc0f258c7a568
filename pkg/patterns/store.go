package patterns

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
)

// Store owns the pattern database connection.
type Store struct {
	db        *sql.DB
	threshold float64
	logger    *logx.Logger
}

// NewStore opens (and if necessary creates) the pattern database at the
// given path. A zero quality threshold falls back to the default gate.
func NewStore(dbPath string, qualityThreshold float64) (*Store, error) {
	if qualityThreshold <= 0 {
		qualityThreshold = config.DefaultQualityThreshold
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping pattern database: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize pattern schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{
		db:        db,
		threshold: qualityThreshold,
		logger:    logx.NewLogger("patterns"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close pattern database: %w", err)
	}
	return nil
}

// createSchema creates all required tables and indices. Idempotent.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			code TEXT NOT NULL,
			avg_score REAL NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,

		// Full-text index over task text, kept in sync by triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS patterns_fts USING fts5(
			task,
			content='patterns',
			content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS patterns_fts_insert AFTER INSERT ON patterns BEGIN
			INSERT INTO patterns_fts(rowid, task) VALUES (new.rowid, new.task);
		END`,
		`CREATE TRIGGER IF NOT EXISTS patterns_fts_delete AFTER DELETE ON patterns BEGIN
			INSERT INTO patterns_fts(patterns_fts, rowid, task) VALUES ('delete', old.rowid, old.task);
		END`,

		`CREATE TABLE IF NOT EXISTS generated_by (
			pattern_id TEXT NOT NULL REFERENCES patterns(id) ON DELETE CASCADE,
			agent TEXT NOT NULL,
			model TEXT NOT NULL,
			score REAL NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (pattern_id, agent)
		)`,

		`CREATE TABLE IF NOT EXISTS builds_on (
			pattern_id TEXT NOT NULL REFERENCES patterns(id) ON DELETE CASCADE,
			parent_id TEXT NOT NULL REFERENCES patterns(id) ON DELETE CASCADE,
			PRIMARY KEY (pattern_id, parent_id),
			CHECK (pattern_id <> parent_id)
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_patterns_score ON patterns(avg_score)",
		"CREATE INDEX IF NOT EXISTS idx_generated_by_pattern ON generated_by(pattern_id)",
		"CREATE INDEX IF NOT EXISTS idx_builds_on_parent ON builds_on(parent_id)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
