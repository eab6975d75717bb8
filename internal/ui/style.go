package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// SetColor forces styling on or off, e.g. for --no-color or tests.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// PrintBanner renders the milestone header line.
func PrintBanner(w io.Writer, title string) {
	fmt.Fprintf(w, "%s %s\n", BoldCyan("◆ milestone"), Dim(title))
}

// CriticalMark marks a critical task in a table row.
func CriticalMark(critical bool) string {
	if critical {
		return BoldYellow("⚡")
	}
	return " "
}

// Slack colors a slack value: zero is critical, negative means the graph
// is inconsistent.
func Slack(days int) string {
	s := fmt.Sprintf("%dd", days)
	switch {
	case days < 0:
		return BoldRed(s)
	case days == 0:
		return BoldYellow(s)
	default:
		return Green(s)
	}
}

// RunType returns a colored run type label.
func RunType(runType string) string {
	switch runType {
	case "rolling":
		return Cyan(runType)
	default:
		return BoldWhite(runType)
	}
}

// LevelTag returns a colored, fixed-width log level tag.
func LevelTag(level string) string {
	switch level {
	case "DEBUG":
		return Dim("DBG")
	case "WARN":
		return Yellow("WRN")
	case "ERROR":
		return BoldRed("ERR")
	default:
		return Cyan("INF")
	}
}
