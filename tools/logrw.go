// Package tools holds small helpers shared by the FTP engine and the
// binaries.
package tools

import (
	"bytes"
	"io"
	"log/slog"
)

// LogWriter passes writes through to Writer and logs each one at debug
// level, with trailing line terminators stripped. The engine wraps the
// control connection in one so every reply sent to the peer shows up in the
// log.
type LogWriter struct {
	Writer io.Writer
	logger *slog.Logger
}

func NewLogWriter(w io.Writer, logger *slog.Logger) *LogWriter {
	return &LogWriter{Writer: w, logger: logger}
}

func (w *LogWriter) Write(b []byte) (int, error) {
	if w.logger != nil {
		w.logger.Debug("sent", "line", string(bytes.TrimRight(b, "\r\n")))
	}
	return w.Writer.Write(b)
}
