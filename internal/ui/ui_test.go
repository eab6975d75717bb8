package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogFormatter(t *testing.T) {
	SetColor(false)

	var out bytes.Buffer
	lf := NewLogFormatter(&out, nil)

	// Split across writes to exercise buffering.
	lf.Write([]byte(`{"time":"2025-01-02T10:04:05Z","level":"INFO","msg":"schedule run saved",`))
	lf.Write([]byte(`"run":3,"project":1}` + "\n" + "plain line\n"))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out.String())
	}
	want := "10:04:05 INF schedule run saved  project=1 run=3"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
	if lines[1] != "plain line" {
		t.Errorf("passthrough = %q", lines[1])
	}
}

func TestLogFormatterHoldsPartialLine(t *testing.T) {
	SetColor(false)

	var out bytes.Buffer
	lf := NewLogFormatter(&out, nil)
	lf.Write([]byte(`{"level":"WARN","msg":"x"}`))
	if out.Len() != 0 {
		t.Fatalf("partial line flushed early: %q", out.String())
	}
	lf.Write([]byte("\n"))
	if got := strings.TrimSpace(out.String()); got != "WRN x" {
		t.Errorf("line = %q", got)
	}
}

func TestSlack(t *testing.T) {
	SetColor(false)
	for days, want := range map[int]string{-1: "-1d", 0: "0d", 4: "4d"} {
		if got := Slack(days); got != want {
			t.Errorf("Slack(%d) = %q, want %q", days, got, want)
		}
	}
}
