// Package logger provides the supervisor's diagnostic logging.
//
// Diagnostics always go to stderr; stdout is reserved for the command result
// protocol (omogenexec/internal/sandbox/protocol.go) and must never carry a
// log line.
package logger

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = colorable.NewColorable(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// SetDebug toggles debug-level verbosity for the process.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// Ctx is a structured logging context, e.g. {"sandbox_id": 4, "cmd_id": "..."}.
type Ctx map[string]any

// Debug logs a debug-level diagnostic.
func Debug(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Debug(msg)
}

// Info logs an info-level diagnostic.
func Info(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Info(msg)
}

// Warn logs a warning diagnostic.
func Warn(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Warn(msg)
}

// Error logs an error diagnostic.
func Error(msg string, ctx ...Ctx) {
	log.WithFields(fields(ctx)).Error(msg)
}

func fields(ctx []Ctx) logrus.Fields {
	f := logrus.Fields{}
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}
	return f
}
