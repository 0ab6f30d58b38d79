// Package logging provides the slog logger tokenguard's internal
// components log through. Unlike a package-level global, the logger is a
// value owned by the Validator so that multiple validator instances in one
// process never fight over a shared handler.
package logging

import (
	"log/slog"
	"os"
)

// Default builds the same handler the teacher's logger.Init used: a plain
// text handler on stderr with the runtime default level.
func Default() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// OrDefault returns l, or Default() if l is nil. The WithLogger options of
// the loader, cache, and pipeline call it so nil-logger callers never
// panic; keystore and discovery take no logger and always use Default().
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Default()
	}
	return l
}
