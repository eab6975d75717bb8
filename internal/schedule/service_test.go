package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joshharrison/milestone/internal/authz"
	"github.com/joshharrison/milestone/internal/cpm"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/joshharrison/milestone/internal/store/filestore"
	"github.com/joshharrison/milestone/internal/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func days(n int) *int { return &n }

func jan(d int) time.Time { return cpm.Date(2025, time.January, d) }

func ptr(t time.Time) *time.Time { return &t }

// newStore opens a file store seeded with project 1 (org 100) and the given
// tasks, all under WBS item 10.
func newStore(t *testing.T, anchor *time.Time, tasks ...store.Task) *filestore.Store {
	t.Helper()
	s, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	wbs := store.WBSItem{ID: 10, ProjectID: 1, Name: "Phase 1"}
	for i := range tasks {
		tasks[i].WBSItem = wbs
	}
	require.NoError(t, s.Load(context.Background(), store.Snapshot{
		Projects: []store.Project{{ID: 1, OrgID: 100, Name: "Launch", StartDate: anchor}},
		WBSItems: []store.WBSItem{wbs},
		Tasks:    tasks,
		Members: []store.Member{
			{ProjectID: 1, UserID: 7, Role: store.RoleAdmin},
			{ProjectID: 1, UserID: 8, Role: store.RoleMember},
		},
	}))
	return s
}

func after(ids ...int64) []store.Dependency {
	deps := make([]store.Dependency, len(ids))
	for i, id := range ids {
		deps[i] = store.Dependency{PredecessorID: id}
	}
	return deps
}

func item(t *testing.T, run store.ScheduleRun, taskID int64) store.ScheduleItem {
	t.Helper()
	for _, it := range run.Items {
		if it.TaskID == taskID {
			return it
		}
	}
	t.Fatalf("run #%d has no item for task %d", run.ID, taskID)
	return store.ScheduleItem{}
}

func assertItem(t *testing.T, it store.ScheduleItem, es, ef, ls, lf time.Time, slack int) {
	t.Helper()
	assert.True(t, it.EarlyStart.Equal(es), "task %d ES = %v, want %v", it.TaskID, it.EarlyStart, es)
	assert.True(t, it.EarlyFinish.Equal(ef), "task %d EF = %v, want %v", it.TaskID, it.EarlyFinish, ef)
	assert.True(t, it.LateStart.Equal(ls), "task %d LS = %v, want %v", it.TaskID, it.LateStart, ls)
	assert.True(t, it.LateFinish.Equal(lf), "task %d LF = %v, want %v", it.TaskID, it.LateFinish, lf)
	assert.Equal(t, slack, it.Slack, "task %d slack", it.TaskID)
}

func TestComputeSchedule_SingleTask(t *testing.T) {
	s := newStore(t, ptr(jan(1)), store.Task{ID: 1, Name: "Only", Duration: days(3)})
	svc := New(s, s)

	run, err := svc.ComputeSchedule(context.Background(), 1, store.RunInitial)
	require.NoError(t, err)

	assert.Equal(t, int64(1), run.ProjectID)
	assert.Equal(t, store.RunInitial, run.RunType)
	require.Len(t, run.Items, 1)
	assert.Equal(t, "Only", run.Items[0].TaskName)
	assertItem(t, run.Items[0], jan(1), jan(4), jan(1), jan(4), 0)
}

func TestComputeSchedule_Chain(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "Design", Duration: days(3)},
		store.Task{ID: 2, Name: "Build", Duration: days(2), Predecessors: after(1)},
	)

	run, err := New(s, s).ComputeSchedule(context.Background(), 1, store.RunInitial)
	require.NoError(t, err)

	assertItem(t, item(t, run, 1), jan(1), jan(4), jan(1), jan(4), 0)
	assertItem(t, item(t, run, 2), jan(4), jan(6), jan(4), jan(6), 0)
	assert.Equal(t, []int64{2, 1}, run.CriticalPath())
}

func TestComputeSchedule_Parallel(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "Short", Duration: days(3)},
		store.Task{ID: 2, Name: "Long", Duration: days(5)},
	)

	run, err := New(s, s).ComputeSchedule(context.Background(), 1, "")
	require.NoError(t, err)

	assert.Equal(t, store.RunInitial, run.RunType, "empty run type defaults to initial")
	assertItem(t, item(t, run, 1), jan(1), jan(4), jan(3), jan(6), 2)
	assertItem(t, item(t, run, 2), jan(1), jan(6), jan(1), jan(6), 0)
}

func TestComputeSchedule_DefaultsAndPersistsAnchor(t *testing.T) {
	s := newStore(t, nil, store.Task{ID: 1, Name: "Only", Duration: days(2)})
	svc := New(s, s)
	svc.Clock = func() time.Time { return time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
	require.NoError(t, err)

	p, err := s.GetProject(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.StartDate, "anchor must be persisted on the project")
	assert.True(t, p.StartDate.Equal(cpm.Date(2025, time.March, 10)))
	assert.True(t, item(t, first, 1).EarlyStart.Equal(cpm.Date(2025, time.March, 10)))

	svc.Clock = func() time.Time { return time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC) }
	second, err := svc.ComputeSchedule(ctx, 1, store.RunRolling)
	require.NoError(t, err)
	assert.True(t, item(t, second, 1).EarlyStart.Equal(cpm.Date(2025, time.March, 10)),
		"second run reuses the stored anchor")
	assert.True(t, second.ExecutedAt.After(first.ExecutedAt))
}

func TestComputeSchedule_ReimportKeepsDefaultedAnchor(t *testing.T) {
	wbs := store.WBSItem{ID: 10, ProjectID: 1, Name: "Phase 1"}
	snap := store.Snapshot{
		Projects: []store.Project{{ID: 1, OrgID: 100, Name: "Launch"}},
		WBSItems: []store.WBSItem{wbs},
		Tasks:    []store.Task{{ID: 1, Name: "Only", Duration: days(2), WBSItem: wbs}},
	}
	backends := map[string]func(t *testing.T) store.Store{
		"file": func(t *testing.T) store.Store {
			s, err := filestore.Open(filepath.Join(t.TempDir(), "store.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) store.Store {
			s, err := sqlstore.Open(filepath.Join(t.TempDir(), "milestone.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.Load(ctx, snap))

			svc := New(s, s)
			svc.Clock = func() time.Time { return time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC) }
			first, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
			require.NoError(t, err)
			assert.True(t, item(t, first, 1).EarlyStart.Equal(jan(1)))

			require.NoError(t, s.Load(ctx, snap))
			p, err := s.GetProject(ctx, 1)
			require.NoError(t, err)
			require.NotNil(t, p.StartDate, "re-import without start_date must keep the anchor")
			assert.True(t, p.StartDate.Equal(jan(1)))

			svc.Clock = func() time.Time { return time.Date(2025, time.January, 9, 12, 0, 0, 0, time.UTC) }
			second, err := svc.ComputeSchedule(ctx, 1, store.RunRolling)
			require.NoError(t, err)
			assert.True(t, item(t, second, 1).EarlyStart.Equal(jan(1)), "second run reuses the stored anchor")
		})
	}
}

func TestComputeSchedule_RepeatedRunsHaveSameShape(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "A", Duration: days(3)},
		store.Task{ID: 2, Name: "B", Duration: days(2), Predecessors: after(1)},
		store.Task{ID: 3, Name: "C", Duration: days(1), Predecessors: after(1)},
	)
	svc := New(s, s)
	ctx := context.Background()

	first, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
	require.NoError(t, err)
	second, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		a, b := first.Items[i], second.Items[i]
		assert.Equal(t, a.TaskID, b.TaskID)
		assertItem(t, b, a.EarlyStart, a.EarlyFinish, a.LateStart, a.LateFinish, a.Slack)
	}

	runs, err := svc.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "history keeps every run")
}

func TestComputeSchedule_ItemsOrderedByTaskIDDesc(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 3, Name: "C", Duration: days(1)},
		store.Task{ID: 1, Name: "A", Duration: days(1), Predecessors: after(3)},
		store.Task{ID: 2, Name: "B", Duration: days(1)},
	)

	run, err := New(s, s).ComputeSchedule(context.Background(), 1, store.RunInitial)
	require.NoError(t, err)

	var ids []int64
	for _, it := range run.Items {
		ids = append(ids, it.TaskID)
	}
	assert.Equal(t, []int64{3, 2, 1}, ids)
}

func TestComputeSchedule_EmptyProject(t *testing.T) {
	s := newStore(t, ptr(jan(1)))

	run, err := New(s, s).ComputeSchedule(context.Background(), 1, store.RunInitial)
	require.NoError(t, err)
	assert.Empty(t, run.Items)
	assert.NotZero(t, run.ID)
}

func TestComputeSchedule_Errors(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "A", Duration: days(1), Predecessors: after(2)},
		store.Task{ID: 2, Name: "B", Duration: days(1), Predecessors: after(1)},
	)
	svc := New(s, s)
	ctx := context.Background()

	_, err := svc.ComputeSchedule(ctx, 42, store.RunInitial)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ComputeSchedule(ctx, 1, "weekly")
	assert.ErrorIs(t, err, ErrInvalidRunType)

	_, err = svc.ComputeSchedule(ctx, 1, store.RunInitial)
	assert.ErrorIs(t, err, cpm.ErrInvalidGraph)
	var cycle *cpm.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.ElementsMatch(t, []int64{1, 2}, cycle.Stalled)

	runs, err := svc.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, runs, "a failed compute stores nothing")
}

func TestLatestRun_NotFoundBeforeFirstCompute(t *testing.T) {
	s := newStore(t, ptr(jan(1)), store.Task{ID: 1, Name: "A", Duration: days(1)})
	svc := New(s, s)

	_, err := svc.LatestRun(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	run, err := svc.ComputeSchedule(context.Background(), 1, store.RunInitial)
	require.NoError(t, err)
	latest, err := svc.LatestRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

// failingRuns wraps a real run store and fails the nth item write.
type failingRuns struct {
	*filestore.Store
	failAt int
}

type failingTx struct {
	store.RunTx
	failAt, n int
}

var errDiskFull = errors.New("disk full")

func (f *failingTx) SaveScheduleItem(ctx context.Context, it store.ScheduleItem) error {
	f.n++
	if f.n == f.failAt {
		return errDiskFull
	}
	return f.RunTx.SaveScheduleItem(ctx, it)
}

func (f *failingRuns) WithinTx(ctx context.Context, fn func(store.RunTx) error) error {
	return f.Store.WithinTx(ctx, func(tx store.RunTx) error {
		return fn(&failingTx{RunTx: tx, failAt: f.failAt})
	})
}

func TestComputeSchedule_PartialFailureLeavesNoRun(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "A", Duration: days(1)},
		store.Task{ID: 2, Name: "B", Duration: days(1), Predecessors: after(1)},
		store.Task{ID: 3, Name: "C", Duration: days(1), Predecessors: after(2)},
	)
	svc := New(s, &failingRuns{Store: s, failAt: 2})
	ctx := context.Background()

	_, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
	require.ErrorIs(t, err, errDiskFull)

	_, err = s.LatestRun(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound, "no run with missing items may be visible")
}

func TestComputeSchedule_ConcurrentCallsAreIndependent(t *testing.T) {
	s := newStore(t, ptr(jan(1)),
		store.Task{ID: 1, Name: "A", Duration: days(2)},
		store.Task{ID: 2, Name: "B", Duration: days(3), Predecessors: after(1)},
	)
	svc := New(s, s)

	const n = 6
	runs := make([]store.ScheduleRun, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i], errs[i] = svc.ComputeSchedule(context.Background(), 1, store.RunRolling)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := range runs {
		require.NoError(t, errs[i])
		assert.False(t, seen[runs[i].ID], "run id %d issued twice", runs[i].ID)
		seen[runs[i].ID] = true
		require.Len(t, runs[i].Items, 2)
		assertItem(t, item(t, runs[i], 2), jan(3), jan(6), jan(3), jan(6), 0)
	}
}

func TestDeleteRun(t *testing.T) {
	s := newStore(t, ptr(jan(1)), store.Task{ID: 1, Name: "A", Duration: days(1)})
	svc := New(s, s)
	ctx := context.Background()

	run, err := svc.ComputeSchedule(ctx, 1, store.RunInitial)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRun(ctx, run.ID))

	_, err = svc.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteRun(ctx, run.ID), store.ErrNotFound)
}

func TestGuarded(t *testing.T) {
	s := newStore(t, ptr(jan(1)), store.Task{ID: 1, Name: "A", Duration: days(1)})
	g := &Guarded{Service: New(s, s), Auth: authz.Members{Catalog: s}}
	ctx := context.Background()

	admin := authz.Caller{UserID: 7, OrgID: 100}
	member := authz.Caller{UserID: 8, OrgID: 100}
	outsider := authz.Caller{UserID: 9, OrgID: 100}
	otherOrg := authz.Caller{UserID: 7, OrgID: 200}

	_, err := g.ComputeSchedule(ctx, member, 1, store.RunInitial)
	assert.ErrorIs(t, err, authz.ErrForbidden, "members cannot compute")

	run, err := g.ComputeSchedule(ctx, admin, 1, store.RunInitial)
	require.NoError(t, err)

	_, err = g.LatestRun(ctx, member, 1)
	assert.NoError(t, err)
	_, err = g.GetRun(ctx, member, run.ID)
	assert.NoError(t, err)
	_, err = g.ListRuns(ctx, outsider, 1)
	assert.ErrorIs(t, err, authz.ErrForbidden)
	_, err = g.GetRun(ctx, otherOrg, run.ID)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	assert.ErrorIs(t, g.DeleteRun(ctx, member, run.ID), authz.ErrForbidden)
	assert.NoError(t, g.DeleteRun(ctx, admin, run.ID))
	assert.ErrorIs(t, g.DeleteRun(ctx, admin, run.ID), store.ErrNotFound)

	_, err = g.ComputeSchedule(ctx, admin, 42, store.RunInitial)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
