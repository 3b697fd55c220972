// Package logger builds the structured loggers used across the service.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// captureException is set when error reporting is configured. It matches
// sentry.CaptureException without importing sentry-go here.
var captureException func(error) interface{}

// SetSentryCaptureException sets the function used to report errors.
func SetSentryCaptureException(fn func(error) interface{}) {
	captureException = fn
}

// New returns a logger writing to stderr at the given level
// (debug, info, warn, error). Unknown levels fall back to info.
func New(level string) *log.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "wss",
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetStyles(styles())
	return l
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Bold(true).
		Foreground(lipgloss.Color("#FF6B9D"))
	s.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B9D"))
	s.Keys["gen"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#B794F6"))
	s.Keys["station"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#42D9C8"))
	return s
}

// Error logs err at error level and reports it when error reporting is on.
func Error(l *log.Logger, err error, msg string, keyvals ...interface{}) {
	l.Error(msg, append(keyvals, "err", err)...)
	if err != nil && captureException != nil {
		captureException(err)
	}
}
