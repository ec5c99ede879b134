// Package mlog provides logging for imap sessions on top of log/slog.
//
// Three extra levels live below the standard slog levels: Trace, Traceauth
// and Tracedata. They carry raw protocol bytes. Traceauth and Tracedata
// redact their payload unless the configured handler level is turned down
// far enough to ask for it explicitly, so credentials and message bodies
// are never part of an ordinary log stream.
package mlog

import (
	"log/slog"
)

const (
	LevelTrace     slog.Level = slog.LevelDebug - 4
	LevelTraceauth slog.Level = slog.LevelDebug - 5
	LevelTracedata slog.Level = slog.LevelDebug - 6
)

var levelNames = map[slog.Level]string{
	LevelTrace:     "TRACE",
	LevelTraceauth: "TRACEAUTH",
	LevelTracedata: "TRACEDATA",
}

// ReplaceLevel is usable as a slog.HandlerOptions.ReplaceAttr function to
// render the extra trace levels with names instead of raw offsets like
// "DEBUG-4".
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if name, ok := levelNames[level]; ok {
		a.Value = slog.StringValue(name)
	}
	return a
}

// Log is a component-scoped logger. The zero value is not usable; create one
// with New.
type Log struct {
	logger *slog.Logger
}

// New returns a Log for component, logging through logger. If logger is nil,
// slog.Default is used.
func New(component string, logger *slog.Logger) Log {
	if logger == nil {
		logger = slog.Default()
	}
	return Log{logger: logger.With("pkg", component)}
}

// With returns a Log with additional fields attached to every line logged
// through it.
func (l Log) With(args ...any) Log {
	return Log{logger: l.logger.With(args...)}
}

func (l Log) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l Log) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l Log) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }

func (l Log) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "err", err)
	}
	l.logger.Error(msg, args...)
}

// Trace logs a protocol-level event at level. Callers pass LevelTrace for
// plain wire bytes, LevelTraceauth for lines carrying credentials (e.g. the
// LOGIN command), and LevelTracedata for lines carrying full message bodies.
// The handler attached to the underlying *slog.Logger decides, via its own
// level threshold, whether any of this is actually emitted — by default
// (Info and up) none of it is.
func (l Log) Trace(level slog.Level, prefix string, buf []byte) {
	if !l.logger.Enabled(nil, level) {
		return
	}
	l.logger.Log(nil, level, prefix, "data", string(buf))
}

// Logger returns the underlying *slog.Logger, e.g. for passing to library
// code that wants a plain slog.Logger.
func (l Log) Logger() *slog.Logger {
	return l.logger
}
