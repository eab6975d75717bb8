package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/joshharrison/milestone/internal/store"
	"gorm.io/gorm"
)

type sqlTx struct {
	db *gorm.DB
}

func (tx *sqlTx) SaveScheduleRun(ctx context.Context, projectID int64, runType store.RunType, executedAt time.Time) (int64, error) {
	db := tx.db.WithContext(ctx)

	var p projectModel
	if err := db.Select("id").First(&p, projectID).Error; err != nil {
		return 0, notFound(err, "project #%d", projectID)
	}
	m := scheduleRunModel{ProjectID: projectID, RunType: string(runType), ExecutedAt: executedAt}
	if err := db.Create(&m).Error; err != nil {
		return 0, fmt.Errorf("insert schedule run: %w", err)
	}
	return m.ID, nil
}

func (tx *sqlTx) SaveScheduleItem(ctx context.Context, item store.ScheduleItem) error {
	db := tx.db.WithContext(ctx)

	var run scheduleRunModel
	if err := db.Select("id").First(&run, item.RunID).Error; err != nil {
		return notFound(err, "schedule run #%d", item.RunID)
	}
	m := scheduleItemModel{
		RunID:       item.RunID,
		TaskID:      item.TaskID,
		EarlyStart:  item.EarlyStart,
		EarlyFinish: item.EarlyFinish,
		LateStart:   item.LateStart,
		LateFinish:  item.LateFinish,
		Slack:       item.Slack,
	}
	if err := db.Omit("Task").Create(&m).Error; err != nil {
		return fmt.Errorf("insert schedule item for task #%d: %w", item.TaskID, err)
	}
	return nil
}

// WithinTx implements store.RunStore with a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.RunTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx})
	})
}

func (s *Store) runs(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("task_id DESC") }).
		Preload("Items.Task")
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(ctx context.Context, id int64) (store.ScheduleRun, error) {
	var m scheduleRunModel
	if err := s.runs(ctx).First(&m, id).Error; err != nil {
		return store.ScheduleRun{}, notFound(err, "schedule run #%d", id)
	}
	return m.toRecord(), nil
}

// LatestRun implements store.RunStore.
func (s *Store) LatestRun(ctx context.Context, projectID int64) (store.ScheduleRun, error) {
	var m scheduleRunModel
	err := s.runs(ctx).
		Where("project_id = ?", projectID).
		Order("executed_at DESC").Order("id DESC").
		Take(&m).Error
	if err != nil {
		return store.ScheduleRun{}, notFound(err, "schedule run for project #%d", projectID)
	}
	return m.toRecord(), nil
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context, projectID int64) ([]store.ScheduleRun, error) {
	var rows []scheduleRunModel
	err := s.runs(ctx).
		Where("project_id = ?", projectID).
		Order("executed_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list schedule runs: %w", err)
	}
	runs := make([]store.ScheduleRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toRecord())
	}
	return runs, nil
}

// DeleteRun removes a run and its items.
func (s *Store) DeleteRun(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&scheduleRunModel{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete schedule run #%d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("schedule run #%d: %w", id, store.ErrNotFound)
		}
		if err := tx.Where("schedule_run_id = ?", id).Delete(&scheduleItemModel{}).Error; err != nil {
			return fmt.Errorf("delete items of schedule run #%d: %w", id, err)
		}
		return nil
	})
}
