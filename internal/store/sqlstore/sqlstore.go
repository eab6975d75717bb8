// Package sqlstore persists the catalogue and schedule runs in SQLite
// through gorm. Run materialization uses a database transaction.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joshharrison/milestone/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is a store.Store backed by a gorm database.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions from
	// failing with SQLITE_BUSY under concurrent computes.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&projectModel{},
		&wbsItemModel{},
		&taskModel{},
		&dependencyModel{},
		&memberModel{},
		&scheduleRunModel{},
		&scheduleItemModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// GetProject implements store.Catalog.
func (s *Store) GetProject(ctx context.Context, id int64) (store.Project, error) {
	var m projectModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return store.Project{}, notFound(err, "project #%d", id)
	}
	return m.toRecord(), nil
}

// ListTasksWithDependencies returns every task of the organization that
// owns projectID, ordered by id, with predecessors and WBS item attached.
func (s *Store) ListTasksWithDependencies(ctx context.Context, projectID int64) ([]store.Task, error) {
	db := s.db.WithContext(ctx)

	var p projectModel
	if err := db.First(&p, projectID).Error; err != nil {
		return nil, notFound(err, "project #%d", projectID)
	}

	var rows []taskModel
	err := db.
		Select("task.*").
		Joins("JOIN wbs_item ON wbs_item.id = task.wbs_item_id").
		Joins("JOIN project ON project.id = wbs_item.project_id").
		Where("project.org_id = ?", p.OrgID).
		Preload("WBSItem").
		Preload("Predecessors", func(db *gorm.DB) *gorm.DB { return db.Order("dependency.id") }).
		Order("task.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]store.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toRecord())
	}
	return tasks, nil
}

// SetProjectAnchorDate implements store.Catalog.
func (s *Store) SetProjectAnchorDate(ctx context.Context, projectID int64, date time.Time) error {
	res := s.db.WithContext(ctx).Model(&projectModel{}).Where("id = ?", projectID).Update("start_date", date)
	if res.Error != nil {
		return fmt.Errorf("set anchor date of project #%d: %w", projectID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("project #%d: %w", projectID, store.ErrNotFound)
	}
	return nil
}

// ProjectMember implements store.Catalog.
func (s *Store) ProjectMember(ctx context.Context, projectID, userID int64) (store.Member, error) {
	var m memberModel
	err := s.db.WithContext(ctx).Where("project_id = ? AND user_id = ?", projectID, userID).First(&m).Error
	if err != nil {
		return store.Member{}, notFound(err, "member %d of project #%d", userID, projectID)
	}
	return store.Member{ProjectID: m.ProjectID, UserID: m.UserID, Role: m.Role}, nil
}

// Load implements store.Loader in one transaction.
func (s *Store) Load(ctx context.Context, snap store.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit(clause.Associations).Session(&gorm.Session{})

		for _, p := range snap.Projects {
			// An absent start date keeps the stored anchor.
			columns := []string{"org_id", "name"}
			if p.StartDate != nil {
				columns = append(columns, "start_date")
			}
			m := projectModel{ID: p.ID, OrgID: p.OrgID, Name: p.Name, StartDate: p.StartDate}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(columns),
			}).Create(&m).Error
			if err != nil {
				return fmt.Errorf("upsert project #%d: %w", p.ID, err)
			}
		}

		wbs := append([]store.WBSItem(nil), snap.WBSItems...)
		for _, t := range snap.Tasks {
			if t.WBSItem.ProjectID != 0 {
				wbs = append(wbs, t.WBSItem)
			}
		}
		for _, w := range wbs {
			m := wbsItemModel{ID: w.ID, ProjectID: w.ProjectID, Name: w.Name}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("upsert wbs item #%d: %w", w.ID, err)
			}
		}

		for _, t := range snap.Tasks {
			m := taskModel{ID: t.ID, Name: t.Name, Duration: t.Duration, WBSItemID: t.WBSItem.ID}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("upsert task #%d: %w", t.ID, err)
			}
			if err := tx.Where("task_id = ?", t.ID).Delete(&dependencyModel{}).Error; err != nil {
				return fmt.Errorf("clear predecessors of task #%d: %w", t.ID, err)
			}
			for _, dep := range t.Predecessors {
				typ := dep.Type
				if typ == "" {
					typ = store.FinishToStart
				}
				dm := dependencyModel{TaskID: t.ID, PredecessorID: dep.PredecessorID, Type: string(typ), Lag: dep.Lag}
				if err := tx.Create(&dm).Error; err != nil {
					return fmt.Errorf("insert dependency %d->%d: %w", dep.PredecessorID, t.ID, err)
				}
			}
		}

		for _, mem := range snap.Members {
			m := memberModel{ProjectID: mem.ProjectID, UserID: mem.UserID, Role: mem.Role}
			if err := upsert.Create(&m).Error; err != nil {
				return fmt.Errorf("upsert member %d of project #%d: %w", mem.UserID, mem.ProjectID, err)
			}
		}
		return nil
	})
}
