// Package filestore keeps the catalogue and schedule runs in a single JSON
// document on disk. Every committed change rewrites the document atomically.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joshharrison/milestone/internal/store"
	"github.com/tidwall/gjson"
)

// SchemaVersion is the document layout written by this package.
const SchemaVersion = 1

// DefaultPath is used when no store path is configured.
const DefaultPath = ".milestone/store.json"

type taskRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Duration  *int   `json:"duration,omitempty"`
	WBSItemID int64  `json:"wbs_item_id"`
}

type sequences struct {
	Run  int64 `json:"run"`
	Item int64 `json:"item"`
	Dep  int64 `json:"dependency"`
}

type document struct {
	SchemaVersion int                 `json:"schema_version"`
	Seq           sequences           `json:"seq"`
	Projects      []store.Project     `json:"projects"`
	WBSItems      []store.WBSItem     `json:"wbs_items"`
	Tasks         []taskRecord        `json:"tasks"`
	Dependencies  []store.Dependency  `json:"dependencies"`
	Members       []store.Member      `json:"members"`
	Runs          []store.ScheduleRun `json:"runs"`
}

// Store is a store.Store backed by a JSON file. It is safe for concurrent
// use within one process.
type Store struct {
	mu   sync.Mutex
	path string
	doc  *document
}

var _ store.Store = (*Store)(nil)

// Open loads the document at path, or starts an empty one if the file does
// not exist yet. The parent directory is created on demand.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{path: path, doc: &document{SchemaVersion: SchemaVersion}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse store %s: invalid JSON", path)
	}
	if v := gjson.GetBytes(data, "schema_version"); v.Exists() && v.Int() != SchemaVersion {
		return nil, fmt.Errorf("store %s: unsupported schema version %d", path, v.Int())
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	doc.SchemaVersion = SchemaVersion
	s.doc = &doc
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close is a no-op; every write is already on disk.
func (s *Store) Close() error {
	return nil
}

// commit persists next and makes it current. Callers hold s.mu.
func (s *Store) commit(next *document) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	s.doc = next
	return nil
}

// clone returns a copy of the document whose slices can be modified without
// touching the committed state.
func (d *document) clone() *document {
	next := *d
	next.Projects = append([]store.Project(nil), d.Projects...)
	next.WBSItems = append([]store.WBSItem(nil), d.WBSItems...)
	next.Tasks = append([]taskRecord(nil), d.Tasks...)
	next.Dependencies = append([]store.Dependency(nil), d.Dependencies...)
	next.Members = append([]store.Member(nil), d.Members...)
	next.Runs = append([]store.ScheduleRun(nil), d.Runs...)
	return &next
}

func (d *document) project(id int64) (int, bool) {
	for i, p := range d.Projects {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (d *document) wbsItem(id int64) (store.WBSItem, bool) {
	for _, w := range d.WBSItems {
		if w.ID == id {
			return w, true
		}
	}
	return store.WBSItem{}, false
}

func (d *document) taskNames() map[int64]string {
	names := make(map[int64]string, len(d.Tasks))
	for _, t := range d.Tasks {
		names[t.ID] = t.Name
	}
	return names
}

// GetProject implements store.Catalog.
func (s *Store) GetProject(ctx context.Context, id int64) (store.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.doc.project(id)
	if !ok {
		return store.Project{}, fmt.Errorf("project #%d: %w", id, store.ErrNotFound)
	}
	return s.doc.Projects[i], nil
}

// ListTasksWithDependencies returns every task in the organization that owns
// projectID, in storage order, with predecessor edges attached. Callers
// narrow the list to the project themselves.
func (s *Store) ListTasksWithDependencies(ctx context.Context, projectID int64) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.doc.project(projectID)
	if !ok {
		return nil, fmt.Errorf("project #%d: %w", projectID, store.ErrNotFound)
	}
	orgID := s.doc.Projects[i].OrgID

	orgProjects := make(map[int64]bool)
	for _, p := range s.doc.Projects {
		if p.OrgID == orgID {
			orgProjects[p.ID] = true
		}
	}

	preds := make(map[int64][]store.Dependency)
	for _, dep := range s.doc.Dependencies {
		preds[dep.TaskID] = append(preds[dep.TaskID], dep)
	}

	var tasks []store.Task
	for _, rec := range s.doc.Tasks {
		wbs, ok := s.doc.wbsItem(rec.WBSItemID)
		if !ok || !orgProjects[wbs.ProjectID] {
			continue
		}
		tasks = append(tasks, store.Task{
			ID:           rec.ID,
			Name:         rec.Name,
			Duration:     rec.Duration,
			WBSItem:      wbs,
			Predecessors: append([]store.Dependency(nil), preds[rec.ID]...),
		})
	}
	return tasks, nil
}

// SetProjectAnchorDate implements store.Catalog.
func (s *Store) SetProjectAnchorDate(ctx context.Context, projectID int64, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.doc.project(projectID)
	if !ok {
		return fmt.Errorf("project #%d: %w", projectID, store.ErrNotFound)
	}
	next := s.doc.clone()
	d := date
	next.Projects[i].StartDate = &d
	return s.commit(next)
}

// ProjectMember implements store.Catalog.
func (s *Store) ProjectMember(ctx context.Context, projectID, userID int64) (store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.doc.Members {
		if m.ProjectID == projectID && m.UserID == userID {
			return m, nil
		}
	}
	return store.Member{}, fmt.Errorf("member %d of project #%d: %w", userID, projectID, store.ErrNotFound)
}

// Load implements store.Loader.
func (s *Store) Load(ctx context.Context, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()

	for _, p := range snap.Projects {
		if i, ok := next.project(p.ID); ok {
			// An absent start date keeps the stored anchor.
			if p.StartDate == nil {
				p.StartDate = next.Projects[i].StartDate
			}
			next.Projects[i] = p
		} else {
			next.Projects = append(next.Projects, p)
		}
	}

	upsertWBS := func(w store.WBSItem) {
		for i := range next.WBSItems {
			if next.WBSItems[i].ID == w.ID {
				next.WBSItems[i] = w
				return
			}
		}
		next.WBSItems = append(next.WBSItems, w)
	}
	for _, w := range snap.WBSItems {
		upsertWBS(w)
	}

	replaced := make(map[int64]bool)
	for _, t := range snap.Tasks {
		if t.WBSItem.ProjectID != 0 {
			upsertWBS(t.WBSItem)
		}
		rec := taskRecord{ID: t.ID, Name: t.Name, Duration: t.Duration, WBSItemID: t.WBSItem.ID}
		found := false
		for i := range next.Tasks {
			if next.Tasks[i].ID == t.ID {
				next.Tasks[i] = rec
				found = true
				break
			}
		}
		if !found {
			next.Tasks = append(next.Tasks, rec)
		}
		replaced[t.ID] = true
	}

	deps := next.Dependencies[:0:0]
	for _, dep := range next.Dependencies {
		if !replaced[dep.TaskID] {
			deps = append(deps, dep)
		}
	}
	for _, t := range snap.Tasks {
		for _, dep := range t.Predecessors {
			next.Seq.Dep++
			dep.ID = next.Seq.Dep
			dep.TaskID = t.ID
			if dep.Type == "" {
				dep.Type = store.FinishToStart
			}
			deps = append(deps, dep)
		}
	}
	next.Dependencies = deps

	for _, m := range snap.Members {
		found := false
		for i := range next.Members {
			if next.Members[i].ProjectID == m.ProjectID && next.Members[i].UserID == m.UserID {
				next.Members[i] = m
				found = true
				break
			}
		}
		if !found {
			next.Members = append(next.Members, m)
		}
	}

	return s.commit(next)
}
