package graph

// TaskGraph is the dependency graph of one project's tasks.
type TaskGraph struct {
	ProjectID int64
	Order     []int64           // tasks in catalogue order
	Names     map[int64]string  // task -> name
	Durations map[int64]int     // task -> duration in days
	InDegree  map[int64]int     // task -> number of in-project predecessors
	Adj       map[int64][]int64 // task -> successors
	RevAdj    map[int64][]int64 // task -> predecessors
	Roots     []int64           // tasks with no predecessors
	Leaves    []int64           // tasks with no successors
}
