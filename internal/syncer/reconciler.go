// Package syncer reconciles the local store with the taskr server and wraps
// that work in background jobs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sadopc/taskr/internal/api"
	"github.com/sadopc/taskr/internal/remote"
	"github.com/sadopc/taskr/internal/store"
)

const keyLastSync = "sync_last_at"

// Remote is the part of the server API the reconciler talks to.
// *remote.Client implements it.
type Remote interface {
	ListTasks(ctx context.Context, since int64) ([]api.TaskData, error)
	PutTask(ctx context.Context, t api.TaskData) (*api.TaskData, error)
	DeleteTask(ctx context.Context, id string) error
	ListGroups(ctx context.Context) ([]api.GroupData, error)
	PutGroup(ctx context.Context, g api.GroupData) (*api.GroupData, error)
	DeleteGroup(ctx context.Context, id string) error
}

// Result counts what one reconcile pass changed.
type Result struct {
	PushedGroups  int
	PushedTasks   int
	DeletedGroups int
	DeletedTasks  int
	PulledGroups  int
	PulledTasks   int
	RemovedGroups int
	RemovedTasks  int
	Conflicts     int
}

func (r *Result) add(o Result) {
	r.PushedGroups += o.PushedGroups
	r.PushedTasks += o.PushedTasks
	r.DeletedGroups += o.DeletedGroups
	r.DeletedTasks += o.DeletedTasks
	r.PulledGroups += o.PulledGroups
	r.PulledTasks += o.PulledTasks
	r.RemovedGroups += o.RemovedGroups
	r.RemovedTasks += o.RemovedTasks
	r.Conflicts += o.Conflicts
}

type Reconciler struct {
	store  *store.Store
	remote Remote
	log    *slog.Logger
}

func New(s *store.Store, r Remote, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, remote: r, log: logger.With("component", "syncer")}
}

// Sync pushes local changes and then pulls the server state.
func (r *Reconciler) Sync(ctx context.Context) (Result, error) {
	res, err := r.Push(ctx)
	if err != nil {
		return res, err
	}
	pulled, err := r.Pull(ctx)
	res.add(pulled)
	if err != nil {
		return res, err
	}
	if err := r.store.SetSetting(keyLastSync, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return res, err
	}
	r.log.Info("sync complete",
		"pushed", res.PushedTasks+res.PushedGroups,
		"deleted", res.DeletedTasks+res.DeletedGroups,
		"pulled", res.PulledTasks+res.PulledGroups,
		"removed", res.RemovedTasks+res.RemovedGroups,
		"conflicts", res.Conflicts)
	return res, nil
}

// ============================================================
// Push
// ============================================================

// Push sends every dirty group and task to the server. Groups go first so
// that tasks can reference them.
func (r *Reconciler) Push(ctx context.Context) (Result, error) {
	var res Result
	if err := r.pushGroups(ctx, &res); err != nil {
		return res, err
	}
	err := r.pushTasks(ctx, &res)
	return res, err
}

func (r *Reconciler) pushGroups(ctx context.Context, res *Result) error {
	groups, err := r.store.ListDirtyGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.Deleted {
			if err := r.remote.DeleteGroup(ctx, g.RemoteID); err != nil {
				return fmt.Errorf("push group %s: %w", g.RemoteID, err)
			}
			if err := r.store.PurgeGroup(g.ID); err != nil {
				return err
			}
			res.DeletedGroups++
			continue
		}

		srv, err := r.remote.PutGroup(ctx, groupData(g))
		switch {
		case errors.Is(err, remote.ErrConflict):
			res.Conflicts++
			cleared, merr := r.store.MarkGroupSynced(g.ID, g.UpdatedAt)
			if merr != nil {
				return merr
			}
			if cleared && srv != nil {
				if _, err := r.store.UpsertRemoteGroup(groupFromData(*srv)); err != nil {
					return err
				}
			}
			r.log.Debug("group conflict", "group", g.RemoteID, "adopted", cleared)
		case err != nil:
			return fmt.Errorf("push group %s: %w", g.RemoteID, err)
		default:
			if _, err := r.store.MarkGroupSynced(g.ID, g.UpdatedAt); err != nil {
				return err
			}
			res.PushedGroups++
		}
	}
	return nil
}

func (r *Reconciler) pushTasks(ctx context.Context, res *Result) error {
	tasks, err := r.store.ListDirtyTasks()
	if err != nil {
		return err
	}
	groupIDs := map[int64]string{}
	for _, t := range tasks {
		if t.Deleted {
			if err := r.remote.DeleteTask(ctx, t.RemoteID); err != nil {
				return fmt.Errorf("push task %s: %w", t.RemoteID, err)
			}
			if err := r.store.PurgeTask(t.ID); err != nil {
				return err
			}
			res.DeletedTasks++
			continue
		}

		data, err := r.taskData(t, groupIDs)
		if err != nil {
			return err
		}
		srv, err := r.remote.PutTask(ctx, data)
		switch {
		case errors.Is(err, remote.ErrConflict):
			res.Conflicts++
			cleared, merr := r.store.MarkTaskSynced(t.ID, t.UpdatedAt)
			if merr != nil {
				return merr
			}
			if cleared && srv != nil {
				local, err := r.taskFromData(*srv)
				if err != nil {
					return err
				}
				if _, err := r.store.UpsertRemoteTask(local); err != nil {
					return err
				}
			}
			r.log.Debug("task conflict", "task", t.RemoteID, "adopted", cleared)
		case err != nil:
			return fmt.Errorf("push task %s: %w", t.RemoteID, err)
		default:
			if _, err := r.store.MarkTaskSynced(t.ID, t.UpdatedAt); err != nil {
				return err
			}
			res.PushedTasks++
		}
	}
	return nil
}

// ============================================================
// Pull
// ============================================================

// Pull applies the server state to the local store. Rows with unpushed
// local edits are left alone.
func (r *Reconciler) Pull(ctx context.Context) (Result, error) {
	var res Result
	if err := r.pullGroups(ctx, &res); err != nil {
		return res, err
	}
	err := r.pullTasks(ctx, &res)
	return res, err
}

func (r *Reconciler) pullGroups(ctx context.Context, res *Result) error {
	remoteGroups, err := r.remote.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("pull groups: %w", err)
	}
	seen := make(map[string]bool, len(remoteGroups))
	for _, gd := range remoteGroups {
		seen[gd.ID] = true
		local, err := r.store.GetGroupByRemoteID(gd.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case local.Dirty || local.UpdatedAt >= gd.UpdatedAt:
			continue
		}
		if _, err := r.store.UpsertRemoteGroup(groupFromData(gd)); err != nil {
			return err
		}
		res.PulledGroups++
	}

	locals, err := r.store.ListGroups(true)
	if err != nil {
		return err
	}
	for _, g := range locals {
		if g.Synced && !g.Dirty && !seen[g.RemoteID] {
			if err := r.store.PurgeGroup(g.ID); err != nil {
				return err
			}
			res.RemovedGroups++
		}
	}
	return nil
}

func (r *Reconciler) pullTasks(ctx context.Context, res *Result) error {
	remoteTasks, err := r.remote.ListTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("pull tasks: %w", err)
	}
	seen := make(map[string]bool, len(remoteTasks))
	for _, td := range remoteTasks {
		seen[td.ID] = true
		local, err := r.store.GetTaskByRemoteID(td.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case local.Dirty || local.UpdatedAt >= td.UpdatedAt:
			continue
		}
		t, err := r.taskFromData(td)
		if err != nil {
			return err
		}
		if _, err := r.store.UpsertRemoteTask(t); err != nil {
			return err
		}
		res.PulledTasks++
	}

	locals, err := r.store.ListTasks(store.TaskFilter{IncludeDeleted: true})
	if err != nil {
		return err
	}
	for _, t := range locals {
		if t.Synced && !t.Dirty && !seen[t.RemoteID] {
			if err := r.store.PurgeTask(t.ID); err != nil {
				return err
			}
			res.RemovedTasks++
		}
	}
	return nil
}

// ============================================================
// Status
// ============================================================

type Status struct {
	LastSync      time.Time // zero if never synced
	PendingTasks  int
	PendingGroups int
}

func (r *Reconciler) Status() (Status, error) {
	var st Status
	v, err := r.store.GetSetting(keyLastSync)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return st, err
	default:
		if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			st.LastSync = time.UnixMilli(ms)
		}
	}
	tasks, err := r.store.ListDirtyTasks()
	if err != nil {
		return st, err
	}
	groups, err := r.store.ListDirtyGroups()
	if err != nil {
		return st, err
	}
	st.PendingTasks = len(tasks)
	st.PendingGroups = len(groups)
	return st, nil
}

// ============================================================
// Conversion
// ============================================================

func groupData(g store.Group) api.GroupData {
	return api.GroupData{ID: g.RemoteID, Name: g.Name, Color: g.Color, UpdatedAt: g.UpdatedAt}
}

func groupFromData(d api.GroupData) store.Group {
	return store.Group{RemoteID: d.ID, Name: d.Name, Color: d.Color, UpdatedAt: d.UpdatedAt}
}

func (r *Reconciler) taskData(t store.Task, groupIDs map[int64]string) (api.TaskData, error) {
	d := api.TaskData{
		ID:          t.RemoteID,
		Title:       t.Title,
		Description: t.Description,
		Date:        t.Date,
		TimeStart:   t.TimeStart,
		TimeEnd:     t.TimeEnd,
		IsCompleted: t.IsCompleted,
		IsSecret:    t.IsSecret,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.GroupID == nil {
		return d, nil
	}
	if rid, ok := groupIDs[*t.GroupID]; ok {
		d.GroupID = rid
		return d, nil
	}
	g, err := r.store.GetGroup(*t.GroupID)
	if err != nil {
		return d, fmt.Errorf("resolve group of task %s: %w", t.RemoteID, err)
	}
	groupIDs[g.ID] = g.RemoteID
	d.GroupID = g.RemoteID
	return d, nil
}

// taskFromData maps a server task onto the local schema. A group the local
// store does not know leaves the task ungrouped.
func (r *Reconciler) taskFromData(d api.TaskData) (store.Task, error) {
	t := store.Task{
		RemoteID:    d.ID,
		Title:       d.Title,
		Description: d.Description,
		Date:        d.Date,
		TimeStart:   d.TimeStart,
		TimeEnd:     d.TimeEnd,
		IsCompleted: d.IsCompleted,
		IsSecret:    d.IsSecret,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.GroupID == "" {
		return t, nil
	}
	g, err := r.store.GetGroupByRemoteID(d.GroupID)
	if errors.Is(err, store.ErrNotFound) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if !g.Deleted {
		t.GroupID = &g.ID
	}
	return t, nil
}
