// Package schedule computes critical path schedules for projects and keeps
// the history of schedule runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshharrison/milestone/internal/cpm"
	"github.com/joshharrison/milestone/internal/ctxlog"
	"github.com/joshharrison/milestone/internal/graph"
	"github.com/joshharrison/milestone/internal/store"
)

// ErrInvalidRunType is returned for a run type other than initial or rolling.
var ErrInvalidRunType = errors.New("invalid run type")

// Service orchestrates one compute: anchor defaulting, graph build, both
// passes, and materialization of the run. It holds no mutable state, so
// concurrent calls produce independent runs.
type Service struct {
	Catalog store.Catalog
	Runs    store.RunStore
	Clock   func() time.Time
}

// New creates a Service using the wall clock.
func New(catalog store.Catalog, runs store.RunStore) *Service {
	return &Service{Catalog: catalog, Runs: runs, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// ParseRunType maps an empty string to initial and rejects unknown values.
func ParseRunType(s string) (store.RunType, error) {
	if s == "" {
		return store.RunInitial, nil
	}
	rt := store.RunType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidRunType)
	}
	return rt, nil
}

// ComputeSchedule recomputes the whole schedule of projectID from the
// current task set and stores it as a new run.
//
// A project without an anchor date is anchored to today's date, and that
// anchor is saved on the project before the forward pass so later runs
// reuse it.
func (s *Service) ComputeSchedule(ctx context.Context, projectID int64, runType store.RunType) (store.ScheduleRun, error) {
	log := ctxlog.FromContext(ctx).With("project", projectID)

	runType, err := ParseRunType(string(runType))
	if err != nil {
		return store.ScheduleRun{}, err
	}

	project, err := s.Catalog.GetProject(ctx, projectID)
	if err != nil {
		return store.ScheduleRun{}, fmt.Errorf("load project: %w", err)
	}

	now := s.now()
	var anchor time.Time
	if project.StartDate == nil {
		anchor = cpm.Day(now)
		if err := s.Catalog.SetProjectAnchorDate(ctx, projectID, anchor); err != nil {
			return store.ScheduleRun{}, fmt.Errorf("save anchor date: %w", err)
		}
		log.Info("anchor date defaulted", "anchor", anchor.Format(time.DateOnly))
	} else {
		anchor = cpm.Day(*project.StartDate)
	}

	tasks, err := s.Catalog.ListTasksWithDependencies(ctx, projectID)
	if err != nil {
		return store.ScheduleRun{}, fmt.Errorf("load tasks: %w", err)
	}

	g := graph.Build(tasks, projectID)
	log.Debug("task graph built", "tasks", g.TaskCount(), "edges", g.EdgeCount())

	result, err := cpm.Analyze(g, anchor)
	if err != nil {
		log.Warn("schedule not computable", "err", err)
		return store.ScheduleRun{}, err
	}
	log.Debug("passes done",
		"finish", result.ProjectFinish.Format(time.DateOnly),
		"days", result.TotalDays,
		"critical", len(result.CriticalPath))

	runID, err := s.materialize(ctx, projectID, runType, now, result)
	if err != nil {
		return store.ScheduleRun{}, err
	}
	log.Info("schedule run saved", "run", runID, "type", runType, "items", len(result.Order))

	return s.Runs.GetRun(ctx, runID)
}

// materialize writes the run and one item per task, in forward discovery
// order, inside a single transaction.
func (s *Service) materialize(ctx context.Context, projectID int64, runType store.RunType, at time.Time, result *cpm.Result) (int64, error) {
	var runID int64
	err := s.Runs.WithinTx(ctx, func(tx store.RunTx) error {
		id, err := tx.SaveScheduleRun(ctx, projectID, runType, at)
		if err != nil {
			return fmt.Errorf("save schedule run: %w", err)
		}
		runID = id

		for _, taskID := range result.Order {
			ts := result.Tasks[taskID]
			item := store.ScheduleItem{
				RunID:       id,
				TaskID:      taskID,
				EarlyStart:  ts.ES,
				EarlyFinish: ts.EF,
				LateStart:   ts.LS,
				LateFinish:  ts.LF,
				Slack:       ts.Slack,
			}
			if err := tx.SaveScheduleItem(ctx, item); err != nil {
				return fmt.Errorf("save schedule item for task #%d: %w", taskID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return runID, nil
}

// LatestRun returns the most recently executed run of projectID.
func (s *Service) LatestRun(ctx context.Context, projectID int64) (store.ScheduleRun, error) {
	return s.Runs.LatestRun(ctx, projectID)
}

// GetRun returns one run with its items.
func (s *Service) GetRun(ctx context.Context, id int64) (store.ScheduleRun, error) {
	return s.Runs.GetRun(ctx, id)
}

// ListRuns returns the run history of projectID, newest first.
func (s *Service) ListRuns(ctx context.Context, projectID int64) ([]store.ScheduleRun, error) {
	return s.Runs.ListRuns(ctx, projectID)
}

// DeleteRun removes a run and its items.
func (s *Service) DeleteRun(ctx context.Context, id int64) error {
	if err := s.Runs.DeleteRun(ctx, id); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("schedule run deleted", "run", id)
	return nil
}
