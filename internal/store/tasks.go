package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `id, remote_id, title, description, date, time_start, time_end,
	is_completed, is_secret, group_id, updated_at, dirty, synced, deleted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var t Task
	var groupID sql.NullInt64
	var completed, secret, dirty, synced, deleted int
	var createdAt string
	err := r.Scan(&t.ID, &t.RemoteID, &t.Title, &t.Description, &t.Date, &t.TimeStart, &t.TimeEnd,
		&completed, &secret, &groupID, &t.UpdatedAt, &dirty, &synced, &deleted, &createdAt)
	if err != nil {
		return t, err
	}
	if groupID.Valid {
		t.GroupID = &groupID.Int64
	}
	t.IsCompleted = completed == 1
	t.IsSecret = secret == 1
	t.Dirty = dirty == 1
	t.Synced = synced == 1
	t.Deleted = deleted == 1
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return t, nil
}

func (s *Store) CreateTask(in TaskInput) (*Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO tasks (remote_id, title, description, date, time_start, time_end, is_secret, group_id, updated_at, dirty, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		uuid.NewString(), strings.TrimSpace(in.Title), in.Description, in.Date, in.TimeStart, in.TimeEnd,
		boolInt(in.IsSecret), in.GroupID, now.UnixMilli(), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetTask(id)
}

func (s *Store) GetTask(id int64) (*Task, error) {
	t, err := scanTask(s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetTaskByRemoteID(remoteID string) (*Task, error) {
	t, err := scanTask(s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE remote_id = ?`, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s: %w", remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", remoteID, err)
	}
	return &t, nil
}

func (s *Store) ListTasks(f TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if !f.IncludeDeleted {
		query += ` AND deleted = 0`
	}
	if f.Date != 0 {
		query += ` AND date = ?`
		args = append(args, f.Date)
	}
	if f.GroupID != nil {
		query += ` AND group_id = ?`
		args = append(args, *f.GroupID)
	}
	if f.HideCompleted {
		query += ` AND is_completed = 0`
	}
	if f.HideSecret {
		query += ` AND is_secret = 0`
	}
	if f.Search != "" {
		query += ` AND (title LIKE ? OR description LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY is_completed, CASE WHEN time_start = 0 THEN 1 ELSE 0 END, time_start, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListUpcomingTasks returns open tasks whose start time is at or after from.
func (s *Store) ListUpcomingTasks(from time.Time) ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE deleted = 0 AND is_completed = 0 AND time_start >= ?
		 ORDER BY time_start, id`, from.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// touch marks a row dirty and moves updated_at strictly forward so that
// MarkTaskSynced can tell whether the row changed during a push.
const touch = `updated_at = MAX(?, updated_at + 1), dirty = 1`

func (s *Store) UpdateTask(id int64, in TaskInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, date = ?, time_start = ?, time_end = ?,
		 is_secret = ?, group_id = ?, `+touch+` WHERE id = ? AND deleted = 0`,
		strings.TrimSpace(in.Title), in.Description, in.Date, in.TimeStart, in.TimeEnd,
		boolInt(in.IsSecret), in.GroupID, nowMillis(), id,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("update task %d", id))
}

func (s *Store) SetTaskCompleted(id int64, completed bool) error {
	res, err := s.db.Exec(
		`UPDATE tasks SET is_completed = ?, `+touch+` WHERE id = ? AND deleted = 0`,
		boolInt(completed), nowMillis(), id,
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("complete task %d", id))
}

// DeleteTask removes a task. Tasks the server has seen are kept as a
// tombstone until the next push deletes them remotely.
func (s *Store) DeleteTask(id int64) error {
	t, err := s.GetTask(id)
	if err != nil {
		return err
	}
	if !t.Synced {
		return s.PurgeTask(id)
	}
	_, err = s.db.Exec(`UPDATE tasks SET deleted = 1, `+touch+` WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (s *Store) PurgeTask(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purge task %d: %w", id, err)
	}
	return nil
}

// ListDirtyTasks returns tasks with local changes not yet pushed, tombstones included.
func (s *Store) ListDirtyTasks() ([]Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks WHERE dirty = 1 ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list dirty tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkTaskSynced clears the dirty flag only if the task still carries
// updatedAt. It reports whether the flag was cleared.
func (s *Store) MarkTaskSynced(id, updatedAt int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET dirty = 0, synced = 1 WHERE id = ? AND updated_at = ?`, id, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("mark task %d synced: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// UpsertRemoteTask stores a task received from the server as clean.
func (s *Store) UpsertRemoteTask(t Task) (*Task, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO tasks (remote_id, title, description, date, time_start, time_end, is_completed, is_secret,
		                    group_id, updated_at, dirty, synced, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, 0, ?)
		 ON CONFLICT(remote_id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, date = excluded.date,
		   time_start = excluded.time_start, time_end = excluded.time_end,
		   is_completed = excluded.is_completed, is_secret = excluded.is_secret,
		   group_id = excluded.group_id, updated_at = excluded.updated_at,
		   dirty = 0, synced = 1, deleted = 0`,
		t.RemoteID, t.Title, t.Description, t.Date, t.TimeStart, t.TimeEnd,
		boolInt(t.IsCompleted), boolInt(t.IsSecret), t.GroupID, t.UpdatedAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert task %s: %w", t.RemoteID, err)
	}
	return s.GetTaskByRemoteID(t.RemoteID)
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
