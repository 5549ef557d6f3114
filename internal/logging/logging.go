// Package logging configures the process-wide structured logger.
//
// The HTTP API's request log goes through the package-level logrus
// logger; the CLI's startup, shutdown and tick-error messages are
// plain writes to stdout/stderr, and nothing in cmd/foreman calls
// [Setup], so logrus keeps its defaults unless a caller does. The
// dashboard's own status line is a separate, smaller user-facing
// channel (see internal/dashboard) since it's UI, not a log stream.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures [Setup].
type Options struct {
	// Level is one of logrus's level names ("debug", "info", "warn",
	// "error"). Defaults to "info" if empty or unrecognized.
	Level string
	// JSON selects the JSON formatter instead of logrus's default text
	// formatter, for runs whose logs are collected by another process.
	JSON bool
	// Output defaults to os.Stderr, kept separate from the TUI which
	// owns stdout.
	Output io.Writer
}

// Setup configures the package-level logrus logger and returns it.
func Setup(opts Options) *logrus.Logger {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(logger.Formatter)

	return logger
}
