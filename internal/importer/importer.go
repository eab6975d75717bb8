// Package importer reads project definitions written in HCL and turns them
// into catalogue snapshots.
//
// A definition file looks like:
//
//	project "website" {
//	  id         = 1
//	  org_id     = 100
//	  start_date = "2025-01-01"
//
//	  member {
//	    user_id = 7
//	    role    = "admin"
//	  }
//
//	  wbs "build" {
//	    id = 10
//
//	    task "design" {
//	      id       = 1
//	      duration = 3
//	    }
//	    task "implement" {
//	      id         = 2
//	      duration   = 2
//	      depends_on = [1]
//	    }
//	  }
//	}
//
// A task may also declare a `dependency { on = 1, type = "SS", lag = 2 }`
// block to record a typed edge. Type and lag are stored as given.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joshharrison/milestone/internal/ctxlog"
	"github.com/joshharrison/milestone/internal/store"
)

type fileRoot struct {
	Projects []*projectBlock `hcl:"project,block"`
}

type projectBlock struct {
	Name      string         `hcl:"name,label"`
	ID        int64          `hcl:"id"`
	OrgID     int64          `hcl:"org_id"`
	StartDate *string        `hcl:"start_date,optional"`
	Members   []*memberBlock `hcl:"member,block"`
	WBS       []*wbsBlock    `hcl:"wbs,block"`
}

type memberBlock struct {
	UserID int64   `hcl:"user_id"`
	Role   *string `hcl:"role,optional"`
}

type wbsBlock struct {
	Name  string       `hcl:"name,label"`
	ID    int64        `hcl:"id"`
	Tasks []*taskBlock `hcl:"task,block"`
}

type taskBlock struct {
	Name         string             `hcl:"name,label"`
	ID           int64              `hcl:"id"`
	Duration     *int               `hcl:"duration,optional"`
	DependsOn    []int64            `hcl:"depends_on,optional"`
	Dependencies []*dependencyBlock `hcl:"dependency,block"`
}

type dependencyBlock struct {
	On   int64   `hcl:"on"`
	Type *string `hcl:"type,optional"`
	Lag  *int    `hcl:"lag,optional"`
}

// Load parses every .hcl file under paths and merges them into one snapshot.
// Directories are walked recursively.
func Load(ctx context.Context, paths ...string) (store.Snapshot, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findHCLFiles(paths)
	if err != nil {
		return store.Snapshot{}, err
	}
	logger.Debug("discovered definition files", "count", len(files))

	parser := hclparse.NewParser()
	b := newBuilder()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return store.Snapshot{}, fmt.Errorf("parse %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return store.Snapshot{}, fmt.Errorf("decode %s: %w", file, diags)
		}
		if err := b.add(root); err != nil {
			return store.Snapshot{}, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("definitions loaded",
		"projects", len(b.snap.Projects),
		"wbs_items", len(b.snap.WBSItems),
		"tasks", len(b.snap.Tasks))
	return b.snap, nil
}

// Parse decodes a single definition held in memory. filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (store.Snapshot, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return store.Snapshot{}, fmt.Errorf("parse %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return store.Snapshot{}, fmt.Errorf("decode %s: %w", filename, diags)
	}
	b := newBuilder()
	if err := b.add(root); err != nil {
		return store.Snapshot{}, err
	}
	return b.snap, nil
}

type builder struct {
	snap     store.Snapshot
	projects map[int64]bool
	wbs      map[int64]bool
	tasks    map[int64]bool
}

func newBuilder() *builder {
	return &builder{
		projects: make(map[int64]bool),
		wbs:      make(map[int64]bool),
		tasks:    make(map[int64]bool),
	}
}

func (b *builder) add(root fileRoot) error {
	for _, p := range root.Projects {
		if b.projects[p.ID] {
			return fmt.Errorf("project %q: duplicate id %d", p.Name, p.ID)
		}
		b.projects[p.ID] = true

		project := store.Project{ID: p.ID, OrgID: p.OrgID, Name: p.Name}
		if p.StartDate != nil {
			d, err := time.Parse(time.DateOnly, *p.StartDate)
			if err != nil {
				return fmt.Errorf("project %q: start_date: %w", p.Name, err)
			}
			project.StartDate = &d
		}
		b.snap.Projects = append(b.snap.Projects, project)

		for _, m := range p.Members {
			role := store.RoleMember
			if m.Role != nil {
				role = *m.Role
			}
			if role != store.RoleAdmin && role != store.RoleMember {
				return fmt.Errorf("project %q: member %d: unknown role %q", p.Name, m.UserID, role)
			}
			b.snap.Members = append(b.snap.Members, store.Member{ProjectID: p.ID, UserID: m.UserID, Role: role})
		}

		for _, w := range p.WBS {
			if err := b.addWBS(p.ID, w); err != nil {
				return fmt.Errorf("project %q: %w", p.Name, err)
			}
		}
	}
	return nil
}

func (b *builder) addWBS(projectID int64, w *wbsBlock) error {
	if b.wbs[w.ID] {
		return fmt.Errorf("wbs %q: duplicate id %d", w.Name, w.ID)
	}
	b.wbs[w.ID] = true

	item := store.WBSItem{ID: w.ID, ProjectID: projectID, Name: w.Name}
	b.snap.WBSItems = append(b.snap.WBSItems, item)

	for _, t := range w.Tasks {
		if b.tasks[t.ID] {
			return fmt.Errorf("task %q: duplicate id %d", t.Name, t.ID)
		}
		b.tasks[t.ID] = true

		deps, err := dependencies(t)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		b.snap.Tasks = append(b.snap.Tasks, store.Task{
			ID:           t.ID,
			Name:         t.Name,
			Duration:     t.Duration,
			WBSItem:      item,
			Predecessors: deps,
		})
	}
	return nil
}

// dependencies merges depends_on and dependency blocks. A dependency block
// overrides a depends_on entry naming the same predecessor.
func dependencies(t *taskBlock) ([]store.Dependency, error) {
	var deps []store.Dependency
	index := make(map[int64]int)

	for _, id := range t.DependsOn {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(deps)
		deps = append(deps, store.Dependency{TaskID: t.ID, PredecessorID: id, Type: store.FinishToStart})
	}

	for _, d := range t.Dependencies {
		dep := store.Dependency{TaskID: t.ID, PredecessorID: d.On, Type: store.FinishToStart}
		if d.Type != nil {
			dep.Type = store.DependencyType(*d.Type)
			if !dep.Type.Valid() {
				return nil, fmt.Errorf("dependency on %d: unknown type %q", d.On, *d.Type)
			}
		}
		if d.Lag != nil {
			dep.Lag = *d.Lag
		}
		if i, ok := index[d.On]; ok {
			deps[i] = dep
			continue
		}
		index[d.On] = len(deps)
		deps = append(deps, dep)
	}

	for _, dep := range deps {
		if dep.PredecessorID == t.ID {
			return nil, errors.New("task depends on itself")
		}
	}
	return deps, nil
}

func findHCLFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("access %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
