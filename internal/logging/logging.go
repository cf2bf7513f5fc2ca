// Package logging builds the process logger.
package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// New returns a text logger writing to w. Only warnings and errors are shown
// unless debug is set; quiet drops warnings too.
func New(w io.Writer, debug, quiet bool) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetFormatter(&log.TextFormatter{
		DisableTimestamp: !debug,
		FullTimestamp:    true,
	})
	switch {
	case debug:
		l.SetLevel(log.DebugLevel)
	case quiet:
		l.SetLevel(log.ErrorLevel)
	default:
		l.SetLevel(log.WarnLevel)
	}
	return l
}

// Discard returns a logger that writes nothing.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
