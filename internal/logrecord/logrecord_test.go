package logrecord

import (
	"strings"
	"testing"
	"time"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Write(line string) {
	r.lines = append(r.lines, line)
}

func newTestFormatter(sink *recordingSink) *Formatter {
	f := NewFormatter(sink)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := t0
	f.now = func() time.Time { return clock }
	return f
}

func TestLogCoalescing(t *testing.T) {
	sink := &recordingSink{}
	f := newTestFormatter(sink)

	f.Log(Record{Logger: "a", Level: Warning, Message: "disk full"})
	f.Log(Record{Logger: "b", Level: Warning, Message: "disk full"})
	f.Log(Record{Logger: "c", Level: Warning, Message: "disk full"})
	f.Log(Record{Logger: "a", Level: Warning, Message: "different message"})

	if len(sink.lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[0], "disk full") {
		t.Fatalf("first line wrong: %s", sink.lines[0])
	}
	if !strings.Contains(sink.lines[1], "repeated 2 times") {
		t.Fatalf("second line should report 2 repeats: %s", sink.lines[1])
	}
	if !strings.Contains(sink.lines[2], "different message") {
		t.Fatalf("third line wrong: %s", sink.lines[2])
	}
}

func TestLogIdempotence(t *testing.T) {
	sink := &recordingSink{}
	f := newTestFormatter(sink)

	f.Log(Record{Logger: "a", Level: Warning, Message: "x"})
	f.Log(Record{Logger: "a", Level: Warning, Message: "x"})
	f.Flush()

	if len(sink.lines) != 2 {
		t.Fatalf("expected 2 lines (line + repeated marker), got %d: %v", len(sink.lines), sink.lines)
	}
	if !strings.Contains(sink.lines[1], "repeated 1 times") {
		t.Fatalf("expected repeated 1 times, got %s", sink.lines[1])
	}
}

func TestBroadcastBreaksRun(t *testing.T) {
	sink := &recordingSink{}
	f := newTestFormatter(sink)

	f.Log(Record{Logger: "a", Level: Warning, Message: "x"})
	f.Log(Record{Logger: "a", Level: Broadcast, Message: "x"})
	f.Log(Record{Logger: "a", Level: Warning, Message: "x"})

	if len(sink.lines) != 3 {
		t.Fatalf("broadcast must break coalescing, got %d lines: %v", len(sink.lines), sink.lines)
	}
}

func TestSrcPrefixStripped(t *testing.T) {
	if got := stripSrcPrefix("/build/project/src/network-backend.c: failure"); got != "network-backend.c: failure" {
		t.Fatalf("got %q", got)
	}
	if got := stripSrcPrefix("no prefix here"); got != "no prefix here" {
		t.Fatalf("got %q", got)
	}
}
