package store

import "time"

// DependencyType tags a predecessor relation. Only the tag is stored; the
// scheduler treats every edge as finish-to-start with no lag.
type DependencyType string

const (
	FinishToStart  DependencyType = "FS"
	StartToStart   DependencyType = "SS"
	FinishToFinish DependencyType = "FF"
	StartToFinish  DependencyType = "SF"
)

// Valid reports whether t is one of the four known relationship tags.
func (t DependencyType) Valid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// RunType labels why a schedule run was computed. It does not change the
// algorithm.
type RunType string

const (
	RunInitial RunType = "initial"
	RunRolling RunType = "rolling"
)

// Valid reports whether r is a known run type.
func (r RunType) Valid() bool {
	return r == RunInitial || r == RunRolling
}

// Member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Project is the scheduling scope. StartDate is the anchor date of the
// forward pass; nil until the first compute sets it.
type Project struct {
	ID        int64      `json:"id"`
	OrgID     int64      `json:"org_id"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"start_date,omitempty"`
}

// WBSItem groups tasks under a project.
type WBSItem struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}

// Task is a unit of work. A nil Duration counts as zero days.
type Task struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Duration     *int         `json:"duration,omitempty"`
	WBSItem      WBSItem      `json:"wbs_item"`
	Predecessors []Dependency `json:"predecessors,omitempty"`
}

// Days returns the task duration with nil treated as zero.
func (t Task) Days() int {
	if t.Duration == nil {
		return 0
	}
	return *t.Duration
}

// Dependency is an edge PredecessorID -> TaskID.
type Dependency struct {
	ID            int64          `json:"id"`
	TaskID        int64          `json:"task_id"`
	PredecessorID int64          `json:"predecessor_id"`
	Type          DependencyType `json:"type"`
	Lag           int            `json:"lag"`
}

// Member binds a user to a project with a role.
type Member struct {
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
}

// ScheduleRun is one immutable snapshot of a schedule computation.
type ScheduleRun struct {
	ID         int64          `json:"id"`
	ProjectID  int64          `json:"project_id"`
	RunType    RunType        `json:"run_type"`
	ExecutedAt time.Time      `json:"executed_at"`
	Items      []ScheduleItem `json:"items"`
}

// CriticalPath returns the ids of zero-slack tasks in item order.
func (r ScheduleRun) CriticalPath() []int64 {
	var ids []int64
	for _, it := range r.Items {
		if it.Critical() {
			ids = append(ids, it.TaskID)
		}
	}
	return ids
}

// ScheduleItem holds the computed dates of one task in a run.
type ScheduleItem struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	TaskID      int64     `json:"task_id"`
	TaskName    string    `json:"task_name,omitempty"`
	EarlyStart  time.Time `json:"early_start"`
	EarlyFinish time.Time `json:"early_finish"`
	LateStart   time.Time `json:"late_start"`
	LateFinish  time.Time `json:"late_finish"`
	Slack       int       `json:"slack"`
}

// Critical reports whether the task lies on the critical path.
func (it ScheduleItem) Critical() bool {
	return it.Slack == 0
}
