// Package netutil holds small net.Conn helpers shared by the session
// package: wire-tracing reader/writer wrappers, a prefix-buffered conn for
// splicing bytes ahead of a freshly upgraded TLS connection, and a TLS
// connection-state describer for logging.
package netutil

import (
	"io"
	"log/slog"

	"github.com/example/imapwatch/mlog"
)

// TraceWriter wraps a writer so that every write is also logged at level
// (LevelTrace by default; callers dial it up or down with SetTrace around
// a single write, e.g. to LevelTraceauth around a LOGIN command).
type TraceWriter struct {
	log    mlog.Log
	prefix string
	w      io.Writer
	level  slog.Level
}

// NewTraceWriter wraps w into a writer that logs all writes to log with
// level trace, prefixed with prefix.
func NewTraceWriter(log mlog.Log, prefix string, w io.Writer) *TraceWriter {
	return &TraceWriter{log, prefix, w, mlog.LevelTrace}
}

func (w *TraceWriter) Write(buf []byte) (int, error) {
	w.log.Trace(w.level, w.prefix, buf)
	return w.w.Write(buf)
}

// SetTrace changes the level used for subsequent writes.
func (w *TraceWriter) SetTrace(level slog.Level) {
	w.level = level
}

// TraceReader wraps a reader so that every successful read is also logged
// at level.
type TraceReader struct {
	log    mlog.Log
	prefix string
	r      io.Reader
	level  slog.Level
}

// NewTraceReader wraps r into a reader that logs all reads to log with level
// trace, prefixed with prefix.
func NewTraceReader(log mlog.Log, prefix string, r io.Reader) *TraceReader {
	return &TraceReader{log, prefix, r, mlog.LevelTrace}
}

func (r *TraceReader) Read(buf []byte) (int, error) {
	n, err := r.r.Read(buf)
	if n > 0 {
		r.log.Trace(r.level, r.prefix, buf[:n])
	}
	return n, err
}

// SetTrace changes the level used for subsequent reads.
func (r *TraceReader) SetTrace(level slog.Level) {
	r.level = level
}
