package filestore

import (
	"context"
	"fmt"
	"time"

	"github.com/joshharrison/milestone/internal/store"
)

// fileTx buffers the writes of one WithinTx call against a private copy of
// the document.
type fileTx struct {
	next *document
	runs map[int64]int // run id -> index in next.Runs
}

func (tx *fileTx) SaveScheduleRun(ctx context.Context, projectID int64, runType store.RunType, executedAt time.Time) (int64, error) {
	if _, ok := tx.next.project(projectID); !ok {
		return 0, fmt.Errorf("project #%d: %w", projectID, store.ErrNotFound)
	}
	tx.next.Seq.Run++
	run := store.ScheduleRun{
		ID:         tx.next.Seq.Run,
		ProjectID:  projectID,
		RunType:    runType,
		ExecutedAt: executedAt,
	}
	tx.next.Runs = append(tx.next.Runs, run)
	tx.runs[run.ID] = len(tx.next.Runs) - 1
	return run.ID, nil
}

func (tx *fileTx) SaveScheduleItem(ctx context.Context, item store.ScheduleItem) error {
	i, ok := tx.runs[item.RunID]
	if !ok {
		return fmt.Errorf("schedule run #%d: %w", item.RunID, store.ErrNotFound)
	}
	tx.next.Seq.Item++
	item.ID = tx.next.Seq.Item
	item.TaskName = ""
	run := &tx.next.Runs[i]
	run.Items = append(run.Items, item)
	return nil
}

// WithinTx implements store.RunStore. The store is locked for the duration
// of fn, so fn must not call back into the Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.RunTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &fileTx{next: s.doc.clone(), runs: make(map[int64]int)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx.next)
}

// hydrate returns a copy of run with task names attached and items ordered
// by task id descending. Callers hold s.mu.
func (s *Store) hydrate(run store.ScheduleRun) store.ScheduleRun {
	names := s.doc.taskNames()
	items := make([]store.ScheduleItem, len(run.Items))
	for i, it := range run.Items {
		it.TaskName = names[it.TaskID]
		items[i] = it
	}
	store.SortItems(items)
	run.Items = items
	return run
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(ctx context.Context, id int64) (store.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.doc.Runs {
		if run.ID == id {
			return s.hydrate(run), nil
		}
	}
	return store.ScheduleRun{}, fmt.Errorf("schedule run #%d: %w", id, store.ErrNotFound)
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context, projectID int64) ([]store.ScheduleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []store.ScheduleRun
	for _, run := range s.doc.Runs {
		if run.ProjectID == projectID {
			runs = append(runs, s.hydrate(run))
		}
	}
	store.SortRuns(runs)
	return runs, nil
}

// LatestRun implements store.RunStore.
func (s *Store) LatestRun(ctx context.Context, projectID int64) (store.ScheduleRun, error) {
	runs, err := s.ListRuns(ctx, projectID)
	if err != nil {
		return store.ScheduleRun{}, err
	}
	if len(runs) == 0 {
		return store.ScheduleRun{}, fmt.Errorf("schedule run for project #%d: %w", projectID, store.ErrNotFound)
	}
	return runs[0], nil
}

// DeleteRun implements store.RunStore.
func (s *Store) DeleteRun(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, run := range s.doc.Runs {
		if run.ID != id {
			continue
		}
		next := s.doc.clone()
		next.Runs = append(next.Runs[:i], next.Runs[i+1:]...)
		return s.commit(next)
	}
	return fmt.Errorf("schedule run #%d: %w", id, store.ErrNotFound)
}
