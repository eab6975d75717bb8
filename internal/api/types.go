package api

import (
	"time"

	"github.com/joshharrison/milestone/internal/store"
)

type itemResponse struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"taskId"`
	TaskName    string `json:"taskName,omitempty"`
	EarlyStart  string `json:"earlyStart"`
	EarlyFinish string `json:"earlyFinish"`
	LateStart   string `json:"lateStart"`
	LateFinish  string `json:"lateFinish"`
	Slack       int    `json:"slack"`
	IsCritical  bool   `json:"isCritical"`
}

type runResponse struct {
	ID           int64          `json:"id"`
	ProjectID    int64          `json:"projectId"`
	RunType      string         `json:"runType"`
	ExecutedAt   string         `json:"executedAt"`
	Items        []itemResponse `json:"items"`
	CriticalPath []int64        `json:"criticalPath"`
}

func toRunResponse(run store.ScheduleRun) runResponse {
	out := runResponse{
		ID:           run.ID,
		ProjectID:    run.ProjectID,
		RunType:      string(run.RunType),
		ExecutedAt:   run.ExecutedAt.UTC().Format(time.RFC3339),
		Items:        make([]itemResponse, 0, len(run.Items)),
		CriticalPath: run.CriticalPath(),
	}
	if out.CriticalPath == nil {
		out.CriticalPath = []int64{}
	}
	for _, it := range run.Items {
		out.Items = append(out.Items, itemResponse{
			ID:          it.ID,
			TaskID:      it.TaskID,
			TaskName:    it.TaskName,
			EarlyStart:  date(it.EarlyStart),
			EarlyFinish: date(it.EarlyFinish),
			LateStart:   date(it.LateStart),
			LateFinish:  date(it.LateFinish),
			Slack:       it.Slack,
			IsCritical:  it.Critical(),
		})
	}
	return out
}

func date(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
