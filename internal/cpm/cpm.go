package cpm

import (
	"errors"
	"fmt"
	"time"

	"github.com/joshharrison/milestone/internal/graph"
)

// ErrInvalidGraph is returned when the dependency graph cannot be scheduled.
var ErrInvalidGraph = errors.New("invalid dependency graph")

// CycleError reports tasks the forward pass could never dequeue.
type CycleError struct {
	Stalled []int64 // tasks whose in-degree never reached zero
	Cycle   []int64 // one offending cycle, first task repeated at the end
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: dependency cycle %v (%d tasks unschedulable)", ErrInvalidGraph, e.Cycle, len(e.Stalled))
}

func (e *CycleError) Unwrap() error {
	return ErrInvalidGraph
}

// Analyze runs the forward and backward passes over g anchored at anchor.
func Analyze(g *graph.TaskGraph, anchor time.Time) (*Result, error) {
	result, err := ForwardPass(g, anchor)
	if err != nil {
		return nil, err
	}
	BackwardPass(g, result)
	return result, nil
}

// ForwardPass computes earliest start and finish with Kahn's algorithm.
// Every task is seeded with ES = anchor; a successor's ES is raised to the
// latest EF among its predecessors as they are dequeued.
func ForwardPass(g *graph.TaskGraph, anchor time.Time) (*Result, error) {
	anchor = Day(anchor)
	result := &Result{
		Anchor: anchor,
		Tasks:  make(map[int64]*TaskSchedule, len(g.Order)),
		Order:  make([]int64, 0, len(g.Order)),
	}

	inDegree := make(map[int64]int, len(g.Order))
	for _, id := range g.Order {
		d := g.Durations[id]
		result.Tasks[id] = &TaskSchedule{
			TaskID:   id,
			Duration: d,
			ES:       anchor,
			EF:       AddDays(anchor, d),
		}
		inDegree[id] = g.InDegree[id]
	}

	queue := make([]int64, 0, len(g.Roots))
	queue = append(queue, g.Roots...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result.Order = append(result.Order, id)

		ts := result.Tasks[id]
		ts.EF = AddDays(ts.ES, ts.Duration)

		for _, succ := range g.Adj[id] {
			succTS := result.Tasks[succ]
			if ts.EF.After(succTS.ES) {
				succTS.ES = ts.EF
			}
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(result.Order) != len(g.Order) {
		var stalled []int64
		for _, id := range g.Order {
			if inDegree[id] > 0 {
				stalled = append(stalled, id)
			}
		}
		return nil, &CycleError{Stalled: stalled, Cycle: g.DetectCycle()}
	}

	return result, nil
}

// BackwardPass computes latest start/finish and slack in reverse discovery
// order, which is a reverse topological order, so every successor is final
// before its predecessors read it.
func BackwardPass(g *graph.TaskGraph, result *Result) {
	finish := result.Anchor
	for i, id := range result.Order {
		ef := result.Tasks[id].EF
		if i == 0 || ef.After(finish) {
			finish = ef
		}
	}
	result.ProjectFinish = finish
	result.TotalDays = DaysBetween(result.Anchor, finish)

	for _, id := range result.Order {
		ts := result.Tasks[id]
		ts.LF = finish
		ts.LS = AddDays(finish, -ts.Duration)
	}

	for i := len(result.Order) - 1; i >= 0; i-- {
		ts := result.Tasks[result.Order[i]]
		for _, succ := range g.Adj[ts.TaskID] {
			succTS := result.Tasks[succ]
			if succTS.LS.Before(ts.LF) {
				ts.LF = succTS.LS
				ts.LS = AddDays(ts.LF, -ts.Duration)
			}
		}
		ts.Slack = DaysBetween(ts.ES, ts.LS)
		ts.IsCritical = ts.Slack == 0
	}

	result.CriticalPath = result.CriticalPath[:0]
	for _, id := range result.Order {
		if result.Tasks[id].IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}
}
