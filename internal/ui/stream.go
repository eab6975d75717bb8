package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// LogFormatter reads slog JSON records and writes them as colored, human
// readable lines to dest. It implements io.Writer. Lines that are not JSON
// are passed through unchanged.
type LogFormatter struct {
	dest io.Writer
	mu   *sync.Mutex
	buf  []byte
}

// NewLogFormatter creates a LogFormatter. mu serializes writes to dest and
// may be shared with other writers of the same terminal.
func NewLogFormatter(dest io.Writer, mu *sync.Mutex) *LogFormatter {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &LogFormatter{dest: dest, mu: mu}
}

func (lf *LogFormatter) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	lf.buf = append(lf.buf, p...)
	for {
		idx := -1
		for i, b := range lf.buf {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx == -1 {
			break
		}
		line := string(lf.buf[:idx])
		lf.buf = lf.buf[idx+1:]
		lf.processLine(line)
	}
	return len(p), nil
}

func (lf *LogFormatter) processLine(line string) {
	if !gjson.Valid(line) {
		fmt.Fprintln(lf.dest, line)
		return
	}

	rec := gjson.Parse(line)
	ts := rec.Get("time").Time()
	level := rec.Get("level").String()
	msg := rec.Get("msg").String()

	var attrs []string
	rec.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "time", "level", "msg":
			return true
		}
		attrs = append(attrs, Dim(key.String()+"=")+value.String())
		return true
	})
	sort.Strings(attrs)

	var b strings.Builder
	if !ts.IsZero() {
		b.WriteString(Dim(ts.Format("15:04:05")))
		b.WriteByte(' ')
	}
	b.WriteString(LevelTag(level))
	b.WriteByte(' ')
	b.WriteString(msg)
	if len(attrs) > 0 {
		b.WriteString("  ")
		b.WriteString(strings.Join(attrs, " "))
	}
	fmt.Fprintln(lf.dest, b.String())
}
