package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentVersion = 2

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS task_groups (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id   TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		color       TEXT NOT NULL DEFAULT '#6C63FF',
		updated_at  INTEGER NOT NULL DEFAULT 0,
		dirty       INTEGER NOT NULL DEFAULT 1,
		synced      INTEGER NOT NULL DEFAULT 0,
		deleted     INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id    TEXT NOT NULL UNIQUE,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		date         INTEGER NOT NULL DEFAULT 0,
		time_start   INTEGER NOT NULL DEFAULT 0,
		time_end     INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		is_secret    INTEGER NOT NULL DEFAULT 0,
		group_id     INTEGER REFERENCES task_groups(id) ON DELETE SET NULL,
		updated_at   INTEGER NOT NULL DEFAULT 0,
		dirty        INTEGER NOT NULL DEFAULT 1,
		synced       INTEGER NOT NULL DEFAULT 0,
		deleted      INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_date  ON tasks(date);
	CREATE INDEX IF NOT EXISTS idx_tasks_start ON tasks(time_start);
	CREATE INDEX IF NOT EXISTS idx_tasks_dirty ON tasks(dirty);

	CREATE TABLE IF NOT EXISTS pomodoro_records (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     INTEGER REFERENCES tasks(id) ON DELETE SET NULL,
		mode        TEXT NOT NULL,
		planned     INTEGER NOT NULL DEFAULT 0,
		actual      INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		ended_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pomodoro_started ON pomodoro_records(started_at);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('pomodoro_focus',             '1500'),
		('pomodoro_short_break',       '300'),
		('pomodoro_long_break',        '900'),
		('pomodoro_rounds',            '4'),
		('pomodoro_auto_start_breaks', 'true'),
		('pomodoro_auto_start_focus',  'false'),
		('pomodoro_overtime',          'false');
	`
	_, err := s.db.Exec(ddl)
	return err
}

// migrateV2 records whether a phase ran to zero, so skipped focus phases
// do not count as rounds.
func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`ALTER TABLE pomodoro_records ADD COLUMN completed INTEGER NOT NULL DEFAULT 0`)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
