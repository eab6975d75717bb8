// Package store defines the records the scheduler reads and writes and the
// collaborator interfaces that persist them.
package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a project, run or membership does not exist.
var ErrNotFound = errors.New("not found")

// Catalog is the read side of the project/task CRUD subsystem plus the one
// write the scheduler performs on it: seeding the project anchor date.
type Catalog interface {
	GetProject(ctx context.Context, id int64) (Project, error)
	ListTasksWithDependencies(ctx context.Context, projectID int64) ([]Task, error)
	SetProjectAnchorDate(ctx context.Context, projectID int64, date time.Time) error
	ProjectMember(ctx context.Context, projectID, userID int64) (Member, error)
}

// RunStore persists schedule runs.
type RunStore interface {
	// WithinTx runs fn in a transaction. Writes made through the RunTx are
	// visible only if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx RunTx) error) error
	GetRun(ctx context.Context, id int64) (ScheduleRun, error)
	LatestRun(ctx context.Context, projectID int64) (ScheduleRun, error)
	ListRuns(ctx context.Context, projectID int64) ([]ScheduleRun, error)
	DeleteRun(ctx context.Context, id int64) error
}

// RunTx is the write side of a single run materialization.
type RunTx interface {
	SaveScheduleRun(ctx context.Context, projectID int64, runType RunType, executedAt time.Time) (int64, error)
	SaveScheduleItem(ctx context.Context, item ScheduleItem) error
}

// Store is implemented by backends that serve both roles.
type Store interface {
	Catalog
	RunStore
	Loader
	Close() error
}

// SortItems orders items by task id descending, the order runs are
// returned in.
func SortItems(items []ScheduleItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TaskID > items[j].TaskID
	})
}

// SortRuns orders runs newest first, breaking timestamp ties by id.
func SortRuns(runs []ScheduleRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].ExecutedAt.Equal(runs[j].ExecutedAt) {
			return runs[i].ExecutedAt.After(runs[j].ExecutedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}

// Snapshot is a batch of catalogue records, as produced by the importer.
// Tasks carry their predecessor edges; Task.WBSItem.ID links the task to a
// WBS item in the same snapshot or already stored.
type Snapshot struct {
	Projects []Project
	WBSItems []WBSItem
	Tasks    []Task
	Members  []Member
}

// Loader upserts catalogue records by id. A task's stored predecessors are
// replaced by the ones in the snapshot.
type Loader interface {
	Load(ctx context.Context, snap Snapshot) error
}
