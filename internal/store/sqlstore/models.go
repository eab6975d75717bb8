package sqlstore

import (
	"time"

	"github.com/joshharrison/milestone/internal/store"
)

type projectModel struct {
	ID        int64      `gorm:"primaryKey;autoIncrement:false"`
	OrgID     int64      `gorm:"not null;index"`
	Name      string     `gorm:"size:255"`
	StartDate *time.Time `gorm:"column:start_date"`
}

func (projectModel) TableName() string { return "project" }

type wbsItemModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	ProjectID int64  `gorm:"not null;index"`
	Name      string `gorm:"size:255"`
}

func (wbsItemModel) TableName() string { return "wbs_item" }

type taskModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:255"`
	Duration  *int
	WBSItemID int64 `gorm:"column:wbs_item_id;not null;index"`

	WBSItem      wbsItemModel      `gorm:"foreignKey:WBSItemID"`
	Predecessors []dependencyModel `gorm:"foreignKey:TaskID"`
}

func (taskModel) TableName() string { return "task" }

type dependencyModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	TaskID        int64  `gorm:"not null;index"`
	PredecessorID int64  `gorm:"not null;index"`
	Type          string `gorm:"size:2;default:FS"`
	Lag           int    `gorm:"default:0"`
}

func (dependencyModel) TableName() string { return "dependency" }

type memberModel struct {
	ProjectID int64  `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	Role      string `gorm:"size:16;default:member"`
}

func (memberModel) TableName() string { return "project_member" }

type scheduleRunModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	ProjectID  int64     `gorm:"not null;index"`
	RunType    string    `gorm:"size:16;default:initial"`
	ExecutedAt time.Time `gorm:"not null;index"`

	Items []scheduleItemModel `gorm:"foreignKey:RunID"`
}

func (scheduleRunModel) TableName() string { return "schedule_run" }

type scheduleItemModel struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	RunID       int64 `gorm:"column:schedule_run_id;not null;index"`
	TaskID      int64 `gorm:"not null;index"`
	EarlyStart  time.Time
	EarlyFinish time.Time
	LateStart   time.Time
	LateFinish  time.Time
	Slack       int

	Task *taskModel `gorm:"foreignKey:TaskID"`
}

func (scheduleItemModel) TableName() string { return "schedule_item" }

func (m projectModel) toRecord() store.Project {
	return store.Project{ID: m.ID, OrgID: m.OrgID, Name: m.Name, StartDate: m.StartDate}
}

func (m wbsItemModel) toRecord() store.WBSItem {
	return store.WBSItem{ID: m.ID, ProjectID: m.ProjectID, Name: m.Name}
}

func (m dependencyModel) toRecord() store.Dependency {
	return store.Dependency{
		ID:            m.ID,
		TaskID:        m.TaskID,
		PredecessorID: m.PredecessorID,
		Type:          store.DependencyType(m.Type),
		Lag:           m.Lag,
	}
}

func (m taskModel) toRecord() store.Task {
	t := store.Task{ID: m.ID, Name: m.Name, Duration: m.Duration, WBSItem: m.WBSItem.toRecord()}
	for _, dep := range m.Predecessors {
		t.Predecessors = append(t.Predecessors, dep.toRecord())
	}
	return t
}

func (m scheduleRunModel) toRecord() store.ScheduleRun {
	run := store.ScheduleRun{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		RunType:    store.RunType(m.RunType),
		ExecutedAt: m.ExecutedAt,
		Items:      make([]store.ScheduleItem, 0, len(m.Items)),
	}
	for _, it := range m.Items {
		item := store.ScheduleItem{
			ID:          it.ID,
			RunID:       it.RunID,
			TaskID:      it.TaskID,
			EarlyStart:  it.EarlyStart,
			EarlyFinish: it.EarlyFinish,
			LateStart:   it.LateStart,
			LateFinish:  it.LateFinish,
			Slack:       it.Slack,
		}
		if it.Task != nil {
			item.TaskName = it.Task.Name
		}
		run.Items = append(run.Items, item)
	}
	store.SortItems(run.Items)
	return run
}
