package ftp

import (
	"errors"
	"strings"
)

// maxLineLen is the maximum accepted length of one control-connection line,
// terminator excluded.
const maxLineLen = 127

// errLineTooLong is reported once when the accumulated line exceeds
// maxLineLen; the offending input is discarded.
var errLineTooLong = errors.New("control line exceeds 127 characters")

// lineReader accumulates bytes from the control connection into discrete
// command lines across multiple polls. Backslashes are normalized to forward
// slashes before accumulation (some Windows clients send DOS-style paths),
// and bare CR/LF with no preceding content is silently skipped.
type lineReader struct {
	buf []byte
}

func (lr *lineReader) reset() { lr.buf = lr.buf[:0] }

// readLine consumes bytes already available on conn and returns at most one
// complete, non-empty line per call. It returns ok=false while the line is
// still incomplete, which includes the case of no input at all. On overflow
// the partial line is dropped and errLineTooLong returned; no line is
// produced for that input.
func (lr *lineReader) readLine(conn Conn) (line string, ok bool, err error) {
	var b [1]byte
	for conn.Available() > 0 {
		n, rerr := conn.Read(b[:])
		if rerr != nil || n == 0 {
			return "", false, rerr
		}
		c := b[0]
		if c == '\\' {
			c = '/'
		}
		if c == '\n' || c == '\r' {
			line = strings.TrimSpace(string(lr.buf))
			lr.reset()
			if line == "" {
				// bare terminator, keep draining
				continue
			}
			return line, true, nil
		}
		lr.buf = append(lr.buf, c)
		if len(lr.buf) > maxLineLen {
			lr.reset()
			return "", false, errLineTooLong
		}
	}
	return "", false, nil
}
