package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sadopc/taskr/internal/api"
	"github.com/sadopc/taskr/internal/jobs"
	"github.com/sadopc/taskr/internal/remote"
	"github.com/sadopc/taskr/internal/store"
)

// fakeRemote is an in-memory server with last-writer-wins PUTs.
type fakeRemote struct {
	mu     sync.Mutex
	tasks  map[string]api.TaskData
	groups map[string]api.GroupData
	err    error
	puts   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tasks: map[string]api.TaskData{}, groups: map[string]api.GroupData{}}
}

func (f *fakeRemote) ListTasks(ctx context.Context, since int64) ([]api.TaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []api.TaskData
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRemote) PutTask(ctx context.Context, t api.TaskData) (*api.TaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.puts++
	if cur, ok := f.tasks[t.ID]; ok && cur.UpdatedAt > t.UpdatedAt {
		return &cur, fmt.Errorf("put: %w", &remote.APIError{Status: 409})
	}
	f.tasks[t.ID] = t
	return &t, nil
}

func (f *fakeRemote) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRemote) ListGroups(ctx context.Context) ([]api.GroupData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []api.GroupData
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeRemote) PutGroup(ctx context.Context, g api.GroupData) (*api.GroupData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if cur, ok := f.groups[g.ID]; ok && cur.UpdatedAt > g.UpdatedAt {
		return &cur, fmt.Errorf("put: %w", &remote.APIError{Status: 409})
	}
	f.groups[g.ID] = g
	return &g, nil
}

func (f *fakeRemote) DeleteGroup(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.groups, id)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setup(t *testing.T) (*store.Store, *fakeRemote, *Reconciler) {
	t.Helper()
	s := newTestStore(t)
	f := newFakeRemote()
	return s, f, New(s, f, nil)
}

func TestPushNewTaskAndGroup(t *testing.T) {
	s, f, r := setup(t)
	g, _ := s.CreateGroup("Work", "")
	task, err := s.CreateTask(store.TaskInput{Title: "Write report", GroupID: &g.ID})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Push(context.Background())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if res.PushedGroups != 1 || res.PushedTasks != 1 {
		t.Fatalf("result = %+v", res)
	}
	got, ok := f.tasks[task.RemoteID]
	if !ok {
		t.Fatal("task not on server")
	}
	if got.GroupID != g.RemoteID {
		t.Errorf("groupId = %q, want %q", got.GroupID, g.RemoteID)
	}
	if got.Title != "Write report" {
		t.Errorf("title = %q", got.Title)
	}

	local, _ := s.GetTask(task.ID)
	if local.Dirty || !local.Synced {
		t.Errorf("task should be clean and synced: %+v", local)
	}
}

func TestPushDeletesTombstones(t *testing.T) {
	s, f, r := setup(t)
	task, _ := s.CreateTask(store.TaskInput{Title: "Temp"})
	if _, err := r.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTask(task.ID); err != nil {
		t.Fatal(err)
	}

	res, err := r.Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedTasks != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := f.tasks[task.RemoteID]; ok {
		t.Error("task should be deleted on server")
	}
	if _, err := s.GetTask(task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("tombstone should be purged, got %v", err)
	}
}

func TestPushConflictAdoptsServerRow(t *testing.T) {
	s, f, r := setup(t)
	task, _ := s.CreateTask(store.TaskInput{Title: "Mine"})
	f.tasks[task.RemoteID] = api.TaskData{ID: task.RemoteID, Title: "Theirs", UpdatedAt: task.UpdatedAt + 1000}

	res, err := r.Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Conflicts != 1 || res.PushedTasks != 0 {
		t.Fatalf("result = %+v", res)
	}
	local, _ := s.GetTask(task.ID)
	if local.Title != "Theirs" || local.Dirty {
		t.Errorf("server row should win: %+v", local)
	}
}

func TestPullInsertsAndUpdates(t *testing.T) {
	s, f, r := setup(t)
	f.groups["g1"] = api.GroupData{ID: "g1", Name: "Home", Color: "#112233", UpdatedAt: 10}
	f.tasks["t1"] = api.TaskData{ID: "t1", Title: "Laundry", GroupID: "g1", UpdatedAt: 10}

	res, err := r.Pull(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.PulledGroups != 1 || res.PulledTasks != 1 {
		t.Fatalf("result = %+v", res)
	}
	task, err := s.GetTaskByRemoteID("t1")
	if err != nil {
		t.Fatal(err)
	}
	g, _ := s.GetGroupByRemoteID("g1")
	if task.GroupID == nil || *task.GroupID != g.ID {
		t.Errorf("group not mapped: %v", task.GroupID)
	}

	f.tasks["t1"] = api.TaskData{ID: "t1", Title: "Laundry (dark)", GroupID: "g1", UpdatedAt: 20}
	if _, err := r.Pull(context.Background()); err != nil {
		t.Fatal(err)
	}
	task, _ = s.GetTaskByRemoteID("t1")
	if task.Title != "Laundry (dark)" {
		t.Errorf("newer remote row should overwrite: %q", task.Title)
	}

	// Same version again changes nothing.
	res, _ = r.Pull(context.Background())
	if res.PulledTasks != 0 || res.PulledGroups != 0 {
		t.Errorf("unchanged rows should be skipped: %+v", res)
	}
}

func TestPullKeepsDirtyLocalRows(t *testing.T) {
	s, f, r := setup(t)
	f.tasks["t1"] = api.TaskData{ID: "t1", Title: "Server", UpdatedAt: 10}
	if _, err := r.Pull(context.Background()); err != nil {
		t.Fatal(err)
	}
	task, _ := s.GetTaskByRemoteID("t1")
	if err := s.UpdateTask(task.ID, store.TaskInput{Title: "Local edit"}); err != nil {
		t.Fatal(err)
	}
	f.tasks["t1"] = api.TaskData{ID: "t1", Title: "Server again", UpdatedAt: 20}

	if _, err := r.Pull(context.Background()); err != nil {
		t.Fatal(err)
	}
	task, _ = s.GetTaskByRemoteID("t1")
	if task.Title != "Local edit" || !task.Dirty {
		t.Errorf("dirty row should survive pull: %+v", task)
	}
}

func TestPullRemovesRowsDeletedRemotely(t *testing.T) {
	s, f, r := setup(t)
	f.groups["g1"] = api.GroupData{ID: "g1", Name: "Old", UpdatedAt: 1}
	f.tasks["t1"] = api.TaskData{ID: "t1", Title: "Gone soon", UpdatedAt: 1}
	if _, err := r.Pull(context.Background()); err != nil {
		t.Fatal(err)
	}
	unsynced, _ := s.CreateTask(store.TaskInput{Title: "Local only"})

	delete(f.tasks, "t1")
	delete(f.groups, "g1")
	res, err := r.Pull(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.RemovedTasks != 1 || res.RemovedGroups != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := s.GetTaskByRemoteID("t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("remote-deleted task should be purged, got %v", err)
	}
	if _, err := s.GetTask(unsynced.ID); err != nil {
		t.Errorf("never-synced task must stay: %v", err)
	}
}

func TestSyncRoundTripBetweenDevices(t *testing.T) {
	f := newFakeRemote()
	phone := newTestStore(t)
	laptop := newTestStore(t)
	rp := New(phone, f, nil)
	rl := New(laptop, f, nil)

	task, _ := phone.CreateTask(store.TaskInput{Title: "Buy milk"})
	if _, err := rp.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := rl.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	onLaptop, err := laptop.GetTaskByRemoteID(task.RemoteID)
	if err != nil {
		t.Fatalf("task not on laptop: %v", err)
	}
	if err := laptop.SetTaskCompleted(onLaptop.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := rl.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := rp.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	onPhone, _ := phone.GetTask(task.ID)
	if !onPhone.IsCompleted {
		t.Error("completion should reach the phone")
	}
}

func TestSyncRecordsStatus(t *testing.T) {
	s, _, r := setup(t)
	s.CreateTask(store.TaskInput{Title: "Pending"})

	st, err := r.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !st.LastSync.IsZero() || st.PendingTasks != 1 {
		t.Fatalf("status before sync = %+v", st)
	}
	if _, err := r.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, _ = r.Status()
	if st.LastSync.IsZero() || st.PendingTasks != 0 {
		t.Fatalf("status after sync = %+v", st)
	}
}

func TestSyncStopsOnError(t *testing.T) {
	s, f, r := setup(t)
	task, _ := s.CreateTask(store.TaskInput{Title: "Offline"})
	f.err = fmt.Errorf("dial: %w", remote.ErrNoInternet)

	_, err := r.Sync(context.Background())
	if remote.Classify(err) != remote.KindNoInternet {
		t.Fatalf("expected no internet, got %v", err)
	}
	local, _ := s.GetTask(task.ID)
	if !local.Dirty {
		t.Error("task should stay dirty after a failed push")
	}
}

func TestSyncWorkerOutcomes(t *testing.T) {
	noNet := fmt.Errorf("x: %w", remote.ErrNoInternet)
	server := fmt.Errorf("x: %w", &remote.APIError{Status: 503})
	unauth := fmt.Errorf("x: %w", remote.ErrUnauthorized)
	other := errors.New("disk full")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    jobs.Outcome
	}{
		{"ok", nil, 0, jobs.Success},
		{"no internet first", noNet, 0, jobs.Retry},
		{"no internet second", noNet, 1, jobs.Retry},
		{"no internet exhausted", noNet, 2, jobs.Failure},
		{"server first", server, 0, jobs.Retry},
		{"server exhausted", server, 5, jobs.Failure},
		{"unauthorized", unauth, 0, jobs.Failure},
		{"other", other, 0, jobs.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			f := newFakeRemote()
			f.err = tt.err
			w := NewSyncWorker(New(s, f, nil), nil)
			if got := w.Run(context.Background(), tt.attempt); got != tt.want {
				t.Errorf("Run(attempt %d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestFetchTasksWorkerRetriesWithoutBound(t *testing.T) {
	s := newTestStore(t)
	f := newFakeRemote()
	f.err = fmt.Errorf("x: %w", remote.ErrNoInternet)
	w := FetchTasksWorker{Reconciler: New(s, f, nil)}

	if got := w.Run(context.Background(), 50); got != jobs.Retry {
		t.Errorf("got %v, want retry", got)
	}
	f.err = fmt.Errorf("x: %w", remote.ErrUnauthorized)
	if got := w.Run(context.Background(), 0); got != jobs.Failure {
		t.Errorf("got %v, want failure", got)
	}
	f.err = nil
	if got := w.Run(context.Background(), 0); got != jobs.Success {
		t.Errorf("got %v, want success", got)
	}
}

func TestFetchTasksWorkerDoesNotPush(t *testing.T) {
	s := newTestStore(t)
	f := newFakeRemote()
	s.CreateTask(store.TaskInput{Title: "Local"})
	w := FetchTasksWorker{Reconciler: New(s, f, nil)}

	if got := w.Run(context.Background(), 0); got != jobs.Success {
		t.Fatalf("got %v", got)
	}
	if f.puts != 0 {
		t.Errorf("fetch should not push, saw %d puts", f.puts)
	}
}

func TestSyncWorkerUnderRunner(t *testing.T) {
	s := newTestStore(t)
	f := newFakeRemote()
	f.err = fmt.Errorf("x: %w", remote.ErrNoInternet)
	w := NewSyncWorker(New(s, f, nil), nil)
	runner := jobs.NewRunner(jobs.Backoff{Initial: 0}, nil)

	out, err := runner.Run(context.Background(), w)
	if err != nil || out != jobs.Failure {
		t.Fatalf("got %v, %v", out, err)
	}
}
