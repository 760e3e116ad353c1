// Package backend is the taskr REST server: accounts, token auth and
// per-user task and group storage.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sadopc/taskr/internal/api"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	ErrInvalid        = errors.New("invalid request")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrStale          = errors.New("stale write")
)

// Repo stores server state. Queries use $n placeholders, which both the
// sqlite and postgres drivers accept.
type Repo struct {
	db     *sql.DB
	driver string
}

// OpenRepo connects with driver "sqlite" or "postgres" and creates the schema.
func OpenRepo(driver, dsn string) (*Repo, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma: %w", err)
		}
	}
	r := &Repo{db: db, driver: driver}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		provider      TEXT NOT NULL DEFAULT 'password',
		created_at    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS task_groups (
		owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		id         TEXT NOT NULL,
		name       TEXT NOT NULL,
		color      TEXT NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		owner_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		id           TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		date         BIGINT NOT NULL DEFAULT 0,
		time_start   BIGINT NOT NULL DEFAULT 0,
		time_end     BIGINT NOT NULL DEFAULT 0,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		is_secret    BOOLEAN NOT NULL DEFAULT FALSE,
		group_id     TEXT NOT NULL DEFAULT '',
		updated_at   BIGINT NOT NULL,
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(owner_id, updated_at)`,
}

func (r *Repo) migrate() error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// isUniqueViolation recognises duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ============================================================
// Users
// ============================================================

type UserRecord struct {
	api.User
	PasswordHash string
	Provider     string
}

func (r *Repo) CreateUser(ctx context.Context, u UserRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, provider, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Provider, time.Now().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repo) userBy(ctx context.Context, col, val string) (*UserRecord, error) {
	var u UserRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, provider FROM users WHERE `+col+` = $1`, val,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", val, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *Repo) UserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return r.userBy(ctx, "email", email)
}

func (r *Repo) UserByID(ctx context.Context, id string) (*UserRecord, error) {
	return r.userBy(ctx, "id", id)
}

// ============================================================
// Refresh tokens
// ============================================================

func (r *Repo) SaveRefreshToken(ctx context.Context, hash, userID string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`,
		hash, userID, expires.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes the token and returns its owner. Each token
// can be consumed once.
func (r *Repo) ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (string, error) {
	var userID string
	var expires int64
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = $1 RETURNING user_id, expires_at`, hash,
	).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("refresh token: %w", ErrBadCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	if expires <= now.UnixMilli() {
		return "", fmt.Errorf("refresh token expired: %w", ErrBadCredentials)
	}
	return userID, nil
}

func (r *Repo) DeleteRefreshToken(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// ============================================================
// Tasks
// ============================================================

const taskCols = `id, title, description, date, time_start, time_end, is_completed, is_secret, group_id, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (api.TaskData, error) {
	var t api.TaskData
	err := s.Scan(&t.ID, &t.Title, &t.Description, &t.Date, &t.TimeStart, &t.TimeEnd,
		&t.IsCompleted, &t.IsSecret, &t.GroupID, &t.UpdatedAt)
	return t, err
}

// ListTasks returns the owner's tasks changed after since, oldest change first.
func (r *Repo) ListTasks(ctx context.Context, owner string, since int64) ([]api.TaskData, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE owner_id = $1 AND updated_at > $2 ORDER BY updated_at, id`,
		owner, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []api.TaskData{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Repo) GetTask(ctx context.Context, owner, id string) (*api.TaskData, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE owner_id = $1 AND id = $2`, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

// PutTask stores t unless the stored row is newer, in which case it returns
// the stored row and ErrStale. The check is part of the upsert, so two
// writers cannot both pass it.
func (r *Repo) PutTask(ctx context.Context, owner string, t api.TaskData) (*api.TaskData, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (owner_id, id, title, description, date, time_start, time_end, is_completed, is_secret, group_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (owner_id, id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, date = excluded.date,
		   time_start = excluded.time_start, time_end = excluded.time_end,
		   is_completed = excluded.is_completed, is_secret = excluded.is_secret,
		   group_id = excluded.group_id, updated_at = excluded.updated_at
		 WHERE tasks.updated_at <= excluded.updated_at`,
		owner, t.ID, t.Title, t.Description, t.Date, t.TimeStart, t.TimeEnd,
		t.IsCompleted, t.IsSecret, t.GroupID, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("put task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("put task %s: %w", t.ID, err)
	}
	if n == 0 {
		cur, err := r.GetTask(ctx, owner, t.ID)
		if err != nil {
			return nil, err
		}
		return cur, fmt.Errorf("put task %s: %w", t.ID, ErrStale)
	}
	return &t, nil
}

// DeleteTask reports ErrNotFound when the task does not exist.
func (r *Repo) DeleteTask(ctx context.Context, owner, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ============================================================
// Groups
// ============================================================

func (r *Repo) ListGroups(ctx context.Context, owner string) ([]api.GroupData, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, color, updated_at FROM task_groups WHERE owner_id = $1 ORDER BY name, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := []api.GroupData{}
	for rows.Next() {
		var g api.GroupData
		if err := rows.Scan(&g.ID, &g.Name, &g.Color, &g.UpdatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// PutGroup follows the same rule as PutTask.
func (r *Repo) PutGroup(ctx context.Context, owner string, g api.GroupData) (*api.GroupData, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO task_groups (owner_id, id, name, color, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id, id) DO UPDATE SET
		   name = excluded.name, color = excluded.color, updated_at = excluded.updated_at
		 WHERE task_groups.updated_at <= excluded.updated_at`,
		owner, g.ID, g.Name, g.Color, g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("put group %s: %w", g.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("put group %s: %w", g.ID, err)
	}
	if n > 0 {
		return &g, nil
	}

	var cur api.GroupData
	err = r.db.QueryRowContext(ctx,
		`SELECT id, name, color, updated_at FROM task_groups WHERE owner_id = $1 AND id = $2`, owner, g.ID,
	).Scan(&cur.ID, &cur.Name, &cur.Color, &cur.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", g.ID, err)
	}
	return &cur, fmt.Errorf("put group %s: %w", g.ID, ErrStale)
}

// DeleteGroup removes the group and ungroups its tasks, bumping their
// updated_at so clients pick the change up.
func (r *Repo) DeleteGroup(ctx context.Context, owner, id string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM task_groups WHERE owner_id = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET group_id = '', updated_at = $1 WHERE owner_id = $2 AND group_id = $3`,
		now.UnixMilli(), owner, id,
	)
	if err != nil {
		return fmt.Errorf("ungroup tasks of %s: %w", id, err)
	}
	return tx.Commit()
}
