// Package logsink fans the formatted log lines produced by
// internal/logrecord out to real destinations: a color-coded console
// writer and/or a rotating file, built on the logging stack
// hamzaKhattat-ara-production-system's go.mod carries
// (sirupsen/logrus + natefinch/lumberjack + fatih/color), which the
// teacher itself does not use but the rest of the retrieval pack does.
package logsink

import (
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bigwindlee/mysqlproxy/internal/config"
)

// Sink fans out already-formatted log lines (internal/logrecord has
// already applied coalescing and timestamping) to logrus, which in
// turn writes to a color console, a rotating file, or both.
type Sink struct {
	console *logrus.Logger
	file    *logrus.Logger
}

// New builds a Sink from the proxy's logging config section.
func New(cfg config.LoggingConfig) *Sink {
	s := &Sink{}
	if cfg.Console || cfg.File == "" {
		s.console = newLogger(nil)
	}
	if cfg.File != "" {
		s.file = newLogger(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotate.MaxSizeMB,
			MaxBackups: cfg.Rotate.MaxBackups,
			MaxAge:     cfg.Rotate.MaxAgeDays,
			Compress:   true,
		})
	}
	return s
}

func newLogger(out *lumberjack.Logger) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: out != nil})
	if out != nil {
		l.SetOutput(out)
	}
	return l
}

var (
	colorError   = color.New(color.FgRed, color.Bold).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgBlue).SprintFunc()
)

// Write satisfies logrecord.Sink: it receives one already-formatted
// line (which may itself be a "repeated N times" marker) and prints it
// to every configured destination.
func (s *Sink) Write(line string) {
	if s.console != nil {
		s.console.Info(colorLine(line))
	}
	if s.file != nil {
		s.file.Info(line)
	}
}

// colorLine applies a color by sniffing the "(level)" token
// logrecord's formatter embeds in each line, falling back to plain
// text for lines it doesn't recognize (e.g. a "repeated N times"
// marker, which carries no level).
func colorLine(line string) string {
	switch {
	case containsLevel(line, "(error)"), containsLevel(line, "(critical)"):
		return colorError(line)
	case containsLevel(line, "(warning)"):
		return colorWarning(line)
	case containsLevel(line, "(info)"):
		return colorInfo(line)
	default:
		return line
	}
}

func containsLevel(line, level string) bool {
	for i := 0; i+len(level) <= len(line); i++ {
		if line[i:i+len(level)] == level {
			return true
		}
	}
	return false
}
