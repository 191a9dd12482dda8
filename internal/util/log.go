package util

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
)

// Logger is a leveled printf logger backed by a pterm logger. It is passed
// explicitly to every component that logs; nothing in the network core
// reaches for a package-level logger.
type Logger struct {
	pl *pterm.Logger
}

// LogOptions configures NewLogger.
type LogOptions struct {
	Writer io.Writer // Defaults to stderr
	Debug  bool
	JSON   bool
}

// NewLogger builds a logger with the time format used across the CLI.
func NewLogger(opts LogOptions) *Logger {
	pl := pterm.DefaultLogger
	pl.ShowTime = true
	pl.TimeFormat = "02 Jan 15:04:05"
	pl.MaxWidth = 1000
	pl.Writer = opts.Writer
	if pl.Writer == nil {
		pl.Writer = os.Stderr
	}
	pl.Level = pterm.LogLevelInfo
	if opts.Debug {
		pl.Level = pterm.LogLevelDebug
	}
	if opts.JSON {
		pl.Formatter = pterm.LogFormatterJSON
	}
	return &Logger{pl: &pl}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.pl.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.pl.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.pl.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.pl.Error(fmt.Sprintf(format, args...))
}

// Log satisfies the network core's log sink: one line tagged with the
// goroutine context it came from.
func (l *Logger) Log(origin, message string) {
	l.pl.Info(message, l.pl.Args("origin", origin))
}

// std backs the CLI-level helpers below.
var std = NewLogger(LogOptions{})

// Default returns the logger used by the CLI helpers.
func Default() *Logger { return std }

// SetDefault replaces the logger used by the CLI helpers.
func SetDefault(l *Logger) { std = l }

func LogInfo(format string, args ...interface{})    { std.Infof(format, args...) }
func LogSuccess(format string, args ...interface{}) { std.Infof(format, args...) }
func LogWarning(format string, args ...interface{}) { std.Warnf(format, args...) }
func LogError(format string, args ...interface{})   { std.Errorf(format, args...) }
