// Package logging resolves the process logger for components that accept an
// optional *logger.Logger.
package logging

import (
	"io"
	"sync"

	"github.com/google/logger"
)

var (
	fallbackOnce sync.Once
	fallback     *logger.Logger
)

// Init configures the process-wide logger. It should be called once from main.
// Info and warnings go to stdout when verbose; errors always go to stderr.
func Init(name string, verbose bool) *logger.Logger {
	l := logger.Init(name, verbose, false, io.Discard)
	fallbackOnce.Do(func() { fallback = l })
	return l
}

// Resolve guarantees a non-nil logger for component code paths.
func Resolve(l *logger.Logger) *logger.Logger {
	if l != nil {
		return l
	}
	fallbackOnce.Do(func() {
		fallback = logger.Init("vote-pipeline", true, false, io.Discard)
	})
	return fallback
}

// Discard returns a logger for tests. Info and warnings are dropped; errors
// still reach stderr because google/logger always writes them there.
func Discard() *logger.Logger {
	return logger.Init("test", false, false, io.Discard)
}
