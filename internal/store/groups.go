package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const groupColumns = `id, remote_id, name, color, updated_at, dirty, synced, deleted, created_at`

func scanGroup(r rowScanner) (Group, error) {
	var g Group
	var dirty, synced, deleted int
	var createdAt string
	err := r.Scan(&g.ID, &g.RemoteID, &g.Name, &g.Color, &g.UpdatedAt, &dirty, &synced, &deleted, &createdAt)
	if err != nil {
		return g, err
	}
	g.Dirty = dirty == 1
	g.Synced = synced == 1
	g.Deleted = deleted == 1
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return g, nil
}

func (s *Store) CreateGroup(name, color string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", ErrInvalid)
	}
	if color == "" {
		color = "#6C63FF"
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO task_groups (remote_id, name, color, updated_at, dirty, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
		uuid.NewString(), name, color, now.UnixMilli(), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetGroup(id)
}

func (s *Store) GetGroup(id int64) (*Group, error) {
	g, err := scanGroup(s.db.QueryRow(`SELECT `+groupColumns+` FROM task_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return &g, nil
}

func (s *Store) GetGroupByRemoteID(remoteID string) (*Group, error) {
	g, err := scanGroup(s.db.QueryRow(`SELECT `+groupColumns+` FROM task_groups WHERE remote_id = ?`, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get group %s: %w", remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", remoteID, err)
	}
	return &g, nil
}

func (s *Store) ListGroups(includeDeleted bool) ([]Group, error) {
	query := `SELECT ` + groupColumns + ` FROM task_groups`
	if !includeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) UpdateGroup(id int64, name, color string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("group name is required: %w", ErrInvalid)
	}
	res, err := s.db.Exec(
		`UPDATE task_groups SET name = ?, color = ?, `+touch+` WHERE id = ? AND deleted = 0`,
		name, color, nowMillis(), id,
	)
	if err != nil {
		return fmt.Errorf("update group %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("update group %d", id))
}

// DeleteGroup detaches the group's tasks and removes it, leaving a
// tombstone when the server already knows the group.
func (s *Store) DeleteGroup(id int64) error {
	g, err := s.GetGroup(id)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete group %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE tasks SET group_id = NULL, `+touch+` WHERE group_id = ?`, nowMillis(), id); err != nil {
		return fmt.Errorf("detach tasks from group %d: %w", id, err)
	}
	if g.Synced {
		_, err = tx.Exec(`UPDATE task_groups SET deleted = 1, `+touch+` WHERE id = ?`, nowMillis(), id)
	} else {
		_, err = tx.Exec(`DELETE FROM task_groups WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("delete group %d: %w", id, err)
	}
	return tx.Commit()
}

func (s *Store) PurgeGroup(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM task_groups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purge group %d: %w", id, err)
	}
	return nil
}

func (s *Store) ListDirtyGroups() ([]Group, error) {
	rows, err := s.db.Query(`SELECT ` + groupColumns + ` FROM task_groups WHERE dirty = 1 ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list dirty groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) MarkGroupSynced(id, updatedAt int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE task_groups SET dirty = 0, synced = 1 WHERE id = ? AND updated_at = ?`, id, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("mark group %d synced: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) UpsertRemoteGroup(g Group) (*Group, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if g.Color == "" {
		g.Color = "#6C63FF"
	}
	_, err := s.db.Exec(
		`INSERT INTO task_groups (remote_id, name, color, updated_at, dirty, synced, deleted, created_at)
		 VALUES (?, ?, ?, ?, 0, 1, 0, ?)
		 ON CONFLICT(remote_id) DO UPDATE SET
		   name = excluded.name, color = excluded.color, updated_at = excluded.updated_at,
		   dirty = 0, synced = 1, deleted = 0`,
		g.RemoteID, g.Name, g.Color, g.UpdatedAt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert group %s: %w", g.RemoteID, err)
	}
	return s.GetGroupByRemoteID(g.RemoteID)
}
