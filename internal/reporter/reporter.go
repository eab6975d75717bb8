package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/joshharrison/milestone/internal/graph"
	"github.com/joshharrison/milestone/internal/store"
	"github.com/joshharrison/milestone/internal/ui"
)

// Reporter renders a schedule run for the terminal.
type Reporter struct {
	Run store.ScheduleRun
	// Graph supplies dependency edges for DOT output. Optional.
	Graph *graph.TaskGraph
}

// New creates a new Reporter.
func New(run store.ScheduleRun, g *graph.TaskGraph) *Reporter {
	return &Reporter{Run: run, Graph: g}
}

// Finish returns the project finish date, the latest early finish of the run.
func (r *Reporter) Finish() (time.Time, bool) {
	var finish time.Time
	for i, it := range r.Run.Items {
		if i == 0 || it.EarlyFinish.After(finish) {
			finish = it.EarlyFinish
		}
	}
	return finish, len(r.Run.Items) > 0
}

// PrintTable writes a terminal-friendly schedule table.
func (r *Reporter) PrintTable(w io.Writer) {
	run := r.Run
	ui.PrintBanner(w, fmt.Sprintf("run #%d", run.ID))
	fmt.Fprintf(w, "Project:   %d\n", run.ProjectID)
	fmt.Fprintf(w, "Type:      %s\n", ui.RunType(string(run.RunType)))
	fmt.Fprintf(w, "Executed:  %s\n", ui.Dim(run.ExecutedAt.Local().Format(time.DateTime)))

	if len(run.Items) == 0 {
		fmt.Fprintf(w, "\n  %s\n", ui.Dim("no tasks scheduled"))
		return
	}

	fmt.Fprintf(w, "\n    %-6s %-32s %-10s %-10s %-10s %-10s %6s\n",
		"TASK", "NAME", "ES", "EF", "LS", "LF", "SLACK")
	for _, it := range run.Items {
		r.printItem(w, it)
	}

	finish, _ := r.Finish()
	fmt.Fprintf(w, "\n%s\n", ui.Cyan("──────────────────────────"))
	fmt.Fprintf(w, "Finish:    %s\n", ui.Bold(finish.Format(time.DateOnly)))
	if path := r.criticalNames(); len(path) > 0 {
		fmt.Fprintf(w, "Critical:  %s\n", ui.BoldYellow("⚡ "+strings.Join(path, " → ")))
	}
}

func (r *Reporter) printItem(w io.Writer, it store.ScheduleItem) {
	name := fit(it.TaskName, 32)
	if it.TaskName == "" {
		name = ui.Dim(fit("(unnamed)", 32))
	}
	fmt.Fprintf(w, "  %s %-6s %s %-10s %-10s %-10s %-10s %6s\n",
		ui.CriticalMark(it.Critical()),
		ui.BoldMagenta(fmt.Sprint(it.TaskID)),
		name,
		it.EarlyStart.Format(time.DateOnly),
		it.EarlyFinish.Format(time.DateOnly),
		it.LateStart.Format(time.DateOnly),
		it.LateFinish.Format(time.DateOnly),
		ui.Slack(it.Slack))
}

// criticalNames lists critical tasks in start order.
func (r *Reporter) criticalNames() []string {
	var crit []store.ScheduleItem
	for _, it := range r.Run.Items {
		if it.Critical() {
			crit = append(crit, it)
		}
	}
	// Items arrive by task id descending; present the chain by date.
	sort.SliceStable(crit, func(i, j int) bool { return less(crit[i], crit[j]) })
	names := make([]string, len(crit))
	for i, it := range crit {
		names[i] = label(it)
	}
	return names
}

// fit truncates s to width runes, marking the cut with "...", and pads it
// with spaces to width runes.
func fit(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		r = append(r[:width-3], []rune("...")...)
	}
	return string(r) + strings.Repeat(" ", width-len(r))
}

func less(a, b store.ScheduleItem) bool {
	if !a.EarlyStart.Equal(b.EarlyStart) {
		return a.EarlyStart.Before(b.EarlyStart)
	}
	return a.TaskID < b.TaskID
}

func label(it store.ScheduleItem) string {
	if it.TaskName != "" {
		return it.TaskName
	}
	return fmt.Sprintf("#%d", it.TaskID)
}

// JSON returns the machine-readable form of the run.
func (r *Reporter) JSON() ([]byte, error) {
	type item struct {
		TaskID      int64  `json:"task_id"`
		TaskName    string `json:"task_name"`
		EarlyStart  string `json:"early_start"`
		EarlyFinish string `json:"early_finish"`
		LateStart   string `json:"late_start"`
		LateFinish  string `json:"late_finish"`
		Slack       int    `json:"slack"`
		IsCritical  bool   `json:"is_critical"`
	}
	type output struct {
		RunID        int64   `json:"run_id"`
		ProjectID    int64   `json:"project_id"`
		RunType      string  `json:"run_type"`
		ExecutedAt   string  `json:"executed_at"`
		Finish       string  `json:"finish,omitempty"`
		CriticalPath []int64 `json:"critical_path"`
		Items        []item  `json:"items"`
	}

	o := output{
		RunID:        r.Run.ID,
		ProjectID:    r.Run.ProjectID,
		RunType:      string(r.Run.RunType),
		ExecutedAt:   r.Run.ExecutedAt.UTC().Format(time.RFC3339),
		CriticalPath: r.Run.CriticalPath(),
		Items:        make([]item, 0, len(r.Run.Items)),
	}
	if o.CriticalPath == nil {
		o.CriticalPath = []int64{}
	}
	if finish, ok := r.Finish(); ok {
		o.Finish = finish.Format(time.DateOnly)
	}
	for _, it := range r.Run.Items {
		o.Items = append(o.Items, item{
			TaskID:      it.TaskID,
			TaskName:    it.TaskName,
			EarlyStart:  it.EarlyStart.Format(time.DateOnly),
			EarlyFinish: it.EarlyFinish.Format(time.DateOnly),
			LateStart:   it.LateStart.Format(time.DateOnly),
			LateFinish:  it.LateFinish.Format(time.DateOnly),
			Slack:       it.Slack,
			IsCritical:  it.Critical(),
		})
	}
	return json.MarshalIndent(o, "", "  ")
}

// PrintDOT writes the run as a Graphviz digraph. Critical tasks and the
// edges between them are highlighted. Edges come from r.Graph; without a
// graph only the nodes are written. Every run item gets a node.
func (r *Reporter) PrintDOT(w io.Writer) {
	fmt.Fprintf(w, "digraph \"run-%d\" {\n", r.Run.ID)
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=rounded];")

	items := make(map[int64]store.ScheduleItem, len(r.Run.Items))
	order := make([]int64, 0, len(r.Run.Items))
	if r.Graph != nil {
		order = append(order, r.Graph.Order...)
	}
	for _, it := range r.Run.Items {
		items[it.TaskID] = it
	}

	// Items not in the graph, e.g. tasks deleted after the run, follow in
	// run order.
	listed := make(map[int64]bool, len(order))
	for _, id := range order {
		listed[id] = true
	}
	for _, it := range r.Run.Items {
		if !listed[it.TaskID] {
			order = append(order, it.TaskID)
		}
	}

	for _, id := range order {
		it, ok := items[id]
		if !ok {
			continue
		}
		attrs := fmt.Sprintf("label=\"%s\\n%s → %s\\nslack %d\"",
			dotEscape(label(it)),
			it.EarlyStart.Format(time.DateOnly),
			it.EarlyFinish.Format(time.DateOnly),
			it.Slack)
		if it.Critical() {
			attrs += ", color=red, penwidth=2"
		}
		fmt.Fprintf(w, "  t%d [%s];\n", id, attrs)
	}

	if r.Graph != nil {
		for _, from := range order {
			for _, to := range r.Graph.Adj[from] {
				a, okA := items[from]
				b, okB := items[to]
				if !okA || !okB {
					continue
				}
				if a.Critical() && b.Critical() && a.EarlyFinish.Equal(b.EarlyStart) {
					fmt.Fprintf(w, "  t%d -> t%d [color=red, penwidth=2];\n", from, to)
				} else {
					fmt.Fprintf(w, "  t%d -> t%d;\n", from, to)
				}
			}
		}
	}
	fmt.Fprintln(w, "}")
}

func dotEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// PrintRuns writes the run history of a project, newest first.
func PrintRuns(w io.Writer, runs []store.ScheduleRun) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "  %s\n", ui.Dim("no schedule runs"))
		return
	}
	fmt.Fprintf(w, "    %-6s %-8s %-19s %6s %s\n", "RUN", "TYPE", "EXECUTED", "TASKS", "FINISH")
	for i, run := range runs {
		marker := " "
		if i == 0 {
			marker = ui.Green("●")
		}
		finish := "-"
		if f, ok := New(run, nil).Finish(); ok {
			finish = f.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "  %s %-6d %-8s %-19s %6d %s\n",
			marker, run.ID, run.RunType,
			run.ExecutedAt.Local().Format(time.DateTime),
			len(run.Items), finish)
	}
}

// PrintASCII writes tasks grouped by early start date, with their
// successors from r.Graph listed under each task.
func (r *Reporter) PrintASCII(w io.Writer) {
	ui.PrintBanner(w, fmt.Sprintf("run #%d dependency graph", r.Run.ID))
	fmt.Fprintln(w)

	items := append([]store.ScheduleItem(nil), r.Run.Items...)
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	var day time.Time
	for i, it := range items {
		if i == 0 || !it.EarlyStart.Equal(day) {
			if i > 0 {
				fmt.Fprintln(w)
			}
			day = it.EarlyStart
			fmt.Fprintf(w, "%s %s %s\n", ui.Cyan("──"), day.Format(time.DateOnly), ui.Cyan("──────────────────────────"))
		}
		fmt.Fprintf(w, "  %s [%s] %s %s\n",
			ui.CriticalMark(it.Critical()), ui.BoldMagenta(fmt.Sprint(it.TaskID)), label(it), ui.Dim("slack "+ui.Slack(it.Slack)))
		if r.Graph == nil {
			continue
		}
		for _, succ := range r.Graph.Adj[it.TaskID] {
			fmt.Fprintf(w, "      %s %s\n", ui.Dim("└──→"), ui.BoldMagenta(fmt.Sprint(succ)))
		}
	}
}
