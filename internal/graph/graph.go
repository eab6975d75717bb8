package graph

import (
	"github.com/joshharrison/milestone/internal/store"
)

// Build constructs the graph of the tasks that belong to projectID.
// Tasks of other projects are dropped, and so are edges whose predecessor is
// not one of the remaining tasks.
func Build(tasks []store.Task, projectID int64) *TaskGraph {
	g := &TaskGraph{
		ProjectID: projectID,
		Names:     make(map[int64]string),
		Durations: make(map[int64]int),
		InDegree:  make(map[int64]int),
		Adj:       make(map[int64][]int64),
		RevAdj:    make(map[int64][]int64),
	}

	var projTasks []store.Task
	for _, t := range tasks {
		if t.WBSItem.ProjectID != projectID {
			continue
		}
		if _, dup := g.Names[t.ID]; dup {
			continue
		}
		projTasks = append(projTasks, t)
		g.Order = append(g.Order, t.ID)
		g.Names[t.ID] = t.Name
		g.Durations[t.ID] = t.Days()
		g.InDegree[t.ID] = 0
	}

	edgeSet := make(map[[2]int64]bool)
	for _, t := range projTasks {
		for _, dep := range t.Predecessors {
			if _, ok := g.Names[dep.PredecessorID]; !ok {
				continue
			}
			key := [2]int64{dep.PredecessorID, t.ID}
			if edgeSet[key] {
				continue
			}
			edgeSet[key] = true
			g.Adj[dep.PredecessorID] = append(g.Adj[dep.PredecessorID], t.ID)
			g.RevAdj[t.ID] = append(g.RevAdj[t.ID], dep.PredecessorID)
			g.InDegree[t.ID]++
		}
	}

	for _, id := range g.Order {
		if g.InDegree[id] == 0 {
			g.Roots = append(g.Roots, id)
		}
		if len(g.Adj[id]) == 0 {
			g.Leaves = append(g.Leaves, id)
		}
	}

	return g
}

// DetectCycle returns the cycle path if one exists, or nil if the graph is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
func (g *TaskGraph) DetectCycle() []int64 {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[int64]int)
	parent := make(map[int64]int64)

	var dfs func(node int64) []int64
	dfs = func(node int64) []int64 {
		color[node] = gray
		for _, next := range g.Adj[node] {
			if color[next] == gray {
				cycle := []int64{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.Order {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TaskCount returns the number of tasks in the graph.
func (g *TaskGraph) TaskCount() int {
	return len(g.Order)
}

// EdgeCount returns the number of distinct edges.
func (g *TaskGraph) EdgeCount() int {
	n := 0
	for _, succ := range g.Adj {
		n += len(succ)
	}
	return n
}
