package schedule

import (
	"context"

	"github.com/joshharrison/milestone/internal/authz"
	"github.com/joshharrison/milestone/internal/store"
)

// Guarded runs Service operations on behalf of a caller. Computing and
// deleting require project admin; reads require project membership.
type Guarded struct {
	Service *Service
	Auth    authz.Authorizer
}

// ComputeSchedule checks admin rights on projectID, then computes.
func (g *Guarded) ComputeSchedule(ctx context.Context, caller authz.Caller, projectID int64, runType store.RunType) (store.ScheduleRun, error) {
	if err := g.Auth.RequireAdmin(ctx, caller, projectID); err != nil {
		return store.ScheduleRun{}, err
	}
	return g.Service.ComputeSchedule(ctx, projectID, runType)
}

// LatestRun checks membership of projectID, then returns its newest run.
func (g *Guarded) LatestRun(ctx context.Context, caller authz.Caller, projectID int64) (store.ScheduleRun, error) {
	if err := g.Auth.RequireMember(ctx, caller, projectID); err != nil {
		return store.ScheduleRun{}, err
	}
	return g.Service.LatestRun(ctx, projectID)
}

// ListRuns checks membership of projectID, then returns its history.
func (g *Guarded) ListRuns(ctx context.Context, caller authz.Caller, projectID int64) ([]store.ScheduleRun, error) {
	if err := g.Auth.RequireMember(ctx, caller, projectID); err != nil {
		return nil, err
	}
	return g.Service.ListRuns(ctx, projectID)
}

// GetRun loads the run, then checks membership of the project it belongs to.
func (g *Guarded) GetRun(ctx context.Context, caller authz.Caller, id int64) (store.ScheduleRun, error) {
	run, err := g.Service.GetRun(ctx, id)
	if err != nil {
		return store.ScheduleRun{}, err
	}
	if err := g.Auth.RequireMember(ctx, caller, run.ProjectID); err != nil {
		return store.ScheduleRun{}, err
	}
	return run, nil
}

// DeleteRun loads the run, checks admin rights on its project, then deletes.
func (g *Guarded) DeleteRun(ctx context.Context, caller authz.Caller, id int64) error {
	run, err := g.Service.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if err := g.Auth.RequireAdmin(ctx, caller, run.ProjectID); err != nil {
		return err
	}
	return g.Service.DeleteRun(ctx, id)
}
