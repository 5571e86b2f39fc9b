package logsink

import (
	"testing"

	"github.com/bigwindlee/mysqlproxy/internal/config"
)

func TestColorLineByLevel(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"t: [session] (error) boom", colorError("t: [session] (error) boom")},
		{"t: [session] (warning) slow", colorWarning("t: [session] (warning) slow")},
		{"t: [session] (info) started", colorInfo("t: [session] (info) started")},
		{"[session] last message repeated 3 times", "[session] last message repeated 3 times"},
	}
	for _, c := range cases {
		if got := colorLine(c.line); got != c.want {
			t.Errorf("colorLine(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestNewConsoleOnlyByDefault(t *testing.T) {
	s := New(config.LoggingConfig{})
	if s.console == nil {
		t.Fatal("expected a console logger when no file is configured")
	}
	if s.file != nil {
		t.Fatal("expected no file logger when Logging.File is empty")
	}
}
