package cpm

import "time"

// Result holds the complete critical path analysis of one project graph.
type Result struct {
	Anchor        time.Time
	Tasks         map[int64]*TaskSchedule
	Order         []int64 // forward pass discovery order
	ProjectFinish time.Time
	TotalDays     int     // ProjectFinish - Anchor
	CriticalPath  []int64 // zero-slack tasks in discovery order
}

// TaskSchedule holds the scheduling info for a single task.
type TaskSchedule struct {
	TaskID     int64
	Duration   int
	ES, EF     time.Time // earliest start/finish
	LS, LF     time.Time // latest start/finish
	Slack      int       // days
	IsCritical bool
}
