// Package logging installs the process-wide slog logger every harness
// component attaches to via slog.With.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Level names accepted by Configure.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var levels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// Configure installs a text handler on stderr at the given level. An
// empty level means warn: the CLI's progress and summary rendering own
// the terminal, so components stay quiet unless something is wrong or
// --debug lowers the threshold.
func Configure(level string) error {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "" {
		name = LevelWarn
	}
	parsed, ok := levels[name]
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	slog.SetDefault(slog.New(h))
	return nil
}
