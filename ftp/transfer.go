package ftp

import (
	"time"

	"github.com/vortigont/FTPClientServer/filesystem"
)

// transfer is the buffered, chunked copy between an open file and the data
// channel. It is restartable across polls: each pump call moves at most one
// buffer worth of data and reports whether more work remains.
type transfer struct {
	file  filesystem.File
	buf   []byte
	alloc Allocator

	bytes int64 // running byte count
	total int64 // file size, send direction only
	began time.Time
}

// start allocates the transfer buffer. It reports false when the allocator
// cannot serve any size, in which case the transfer must not begin and the
// caller reports a resource error.
func (t *transfer) start(file filesystem.File, alloc Allocator, now time.Time) bool {
	t.buf = alloc.Get(transferBufSize)
	if t.buf == nil {
		return false
	}
	t.file = file
	t.alloc = alloc
	t.bytes = 0
	t.total = file.Size()
	t.began = now
	return true
}

// sendChunk moves one chunk from the file to the data channel. It reports
// false when the transfer is finished: byte count reached the file size, or
// the data channel disconnected.
func (t *transfer) sendChunk(data Conn) bool {
	if !data.Connected() || t.bytes >= t.total {
		return false
	}
	nb := t.total - t.bytes
	if nb > int64(len(t.buf)) {
		nb = int64(len(t.buf))
	}
	n, err := t.file.Read(t.buf[:nb])
	if n > 0 {
		if _, werr := data.Write(t.buf[:n]); werr != nil {
			return false
		}
		t.bytes += int64(n)
	}
	if err != nil {
		return false
	}
	return n > 0
}

// recvChunk moves bytes already available on the data channel into the file,
// never blocking to wait for more. It reports false only when the channel
// has disconnected and the same poll saw no bytes — checking in that order
// so a final chunk delivered together with the peer's close is not dropped.
func (t *transfer) recvChunk(data Conn) bool {
	avail := data.Available()
	if avail > 0 {
		if avail > len(t.buf) {
			avail = len(t.buf)
		}
		n, _ := data.Read(t.buf[:avail])
		avail = n
		if n > 0 {
			if _, err := t.file.Write(t.buf[:n]); err != nil {
				return false
			}
			t.bytes += int64(n)
		}
	}
	if !data.Connected() && avail <= 0 {
		return false
	}
	return true
}

// close releases the file handle and returns the buffer to the allocator,
// exactly once regardless of how often it is called.
func (t *transfer) close() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	if t.buf != nil {
		t.alloc.Put(t.buf)
		t.buf = nil
	}
}
