// Package logrecord implements the timestamped, de-duplicating log
// record formatter consumed by log sinks. It is grounded directly on
// chassis_log_backend.c's coalescing algorithm: a run of identical
// non-broadcast messages collapses into one line plus a trailing
// "repeated N times" marker once the run breaks.
package logrecord

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level is a log severity, ordered high to low priority.
type Level int

const (
	Error Level = iota
	Critical
	Warning
	Message
	Info
	Debug
	Broadcast
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Critical:
		return "critical"
	case Warning:
		return "warning"
	case Message:
		return "message"
	case Info:
		return "info"
	case Debug:
		return "debug"
	case Broadcast:
		return "*"
	default:
		return "unknown"
	}
}

const (
	coalesceCap     = 100
	coalesceTimeout = 30 * time.Second
)

// Record is a single log event before formatting.
type Record struct {
	Logger  string
	Level   Level
	Message string
}

// Sink receives formatted output lines. Sinks are ambient plumbing;
// the formatter itself owns only coalescing and text shaping.
type Sink interface {
	Write(line string)
}

// Logger is implemented by anything that accepts raw Records — the
// components that log (backend registry, wire codec, session, admin
// API) take one of these rather than a concrete Formatter, so tests
// can substitute a recording stub.
type Logger interface {
	Log(Record)
}

// Formatter applies the coalescing/formatting discipline described
// above and writes formatted lines to a Sink.
type Formatter struct {
	mu   sync.Mutex
	sink Sink
	now  func() time.Time

	lastMsg     string
	lastLoggers map[string]struct{}
	lastCount   int
	lastFirstTS time.Time
	haveLast    bool
}

// NewFormatter returns a Formatter writing to sink.
func NewFormatter(sink Sink) *Formatter {
	return &Formatter{sink: sink, now: time.Now, lastLoggers: map[string]struct{}{}}
}

// Log admits one record, applying coalescing and emitting to the sink.
func (f *Formatter) Log(r Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logger := r.Logger
	if logger == "" {
		logger = "global"
	}
	stripped := stripSrcPrefix(r.Message)
	now := f.now()

	isDuplicate := f.haveLast &&
		r.Level != Broadcast &&
		stripped == f.lastMsg &&
		f.lastCount < coalesceCap &&
		now.Sub(f.lastFirstTS) < coalesceTimeout

	if isDuplicate {
		f.lastLoggers[logger] = struct{}{}
		f.lastCount++
		return
	}

	if f.haveLast && f.lastCount > 0 {
		f.sink.Write(f.repeatedLine())
	}
	f.sink.Write(formatLine(now, logger, r.Level, stripped))

	f.lastMsg = stripped
	f.lastLoggers = map[string]struct{}{}
	f.lastCount = 0
	f.lastFirstTS = now
	// A broadcast record never starts a run: the record after it is
	// always written out, even if its message is the same.
	f.haveLast = r.Level != Broadcast
}

// Flush emits any pending "repeated N times" marker without waiting
// for the next record to break the run. Used at shutdown.
func (f *Formatter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.haveLast && f.lastCount > 0 {
		f.sink.Write(f.repeatedLine())
		f.lastCount = 0
	}
}

func (f *Formatter) repeatedLine() string {
	loggers := make([]string, 0, len(f.lastLoggers))
	for l := range f.lastLoggers {
		loggers = append(loggers, l)
	}
	return fmt.Sprintf("[%s] last message repeated %d times", strings.Join(loggers, ", "), f.lastCount)
}

func formatLine(ts time.Time, logger string, level Level, message string) string {
	return fmt.Sprintf("%s: [%s] (%s) %s", ts.Format("2006-01-02T15:04:05.000"), logger, level, message)
}

// stripSrcPrefix removes any leading path up to and including the
// last occurrence of "src/" (or a platform separator equivalent),
// matching chassis_log_skip_topsrcdir.
func stripSrcPrefix(msg string) string {
	if idx := strings.LastIndex(msg, "src/"); idx >= 0 {
		return msg[idx+len("src/"):]
	}
	return msg
}
