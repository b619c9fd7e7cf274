// Package netconn implements the ftp socket interfaces on top of the
// standard TCP stack. The engine's contract is strictly non-blocking, so
// reads and accepts are realized as short-deadline probes: they take what
// the kernel already holds or fail within a millisecond with a timeout that
// is swallowed. The deadline must lie in the future — the runtime rejects an
// already-expired one before attempting the syscall, so an expired deadline
// would never see ready data at all.
package netconn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/vortigont/FTPClientServer/ftp"
)

const (
	// DefaultDialTimeout bounds the single connection attempt of Dial.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds every Conn.Write.
	DefaultWriteTimeout = 5 * time.Second

	// probeTimeout bounds each read/accept probe. It must be positive: a
	// deadline already in the past fails before the syscall is attempted.
	probeTimeout = time.Millisecond

	readBufSize = 1500
)

// Network hands out TCP listeners and outbound connections. The zero value
// is usable and applies the default timeouts.
type Network struct {
	// DialTimeout bounds Dial; zero means DefaultDialTimeout.
	DialTimeout time.Duration
	// WriteTimeout bounds each write on connections produced by this
	// network; zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
}

var _ ftp.Network = &Network{}

// Listen binds a TCP listener on all interfaces. Port 0 selects an
// ephemeral port, reported by Addr.
func (n *Network) Listen(port uint16) (ftp.Listener, error) {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("error binding port %d: %w", port, err)
	}
	return &Listener{tcp: l, writeTimeout: n.writeTimeout()}, nil
}

// Dial makes one connection attempt, bounded by DialTimeout.
func (n *Network) Dial(host string, port uint16) (ftp.Conn, error) {
	timeout := n.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s:%d: %w", host, port, err)
	}
	return newConn(c.(*net.TCPConn), n.writeTimeout()), nil
}

func (n *Network) writeTimeout() time.Duration {
	if n.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return n.WriteTimeout
}

// Listener wraps a TCP listener behind a non-blocking accept probe. A
// connection accepted by HasClient is parked until Accept collects it.
type Listener struct {
	tcp          *net.TCPListener
	writeTimeout time.Duration
	pending      *net.TCPConn
}

var _ ftp.Listener = &Listener{}

// HasClient probes for an inbound connection with a short accept deadline:
// a waiting connection is taken and parked, an empty backlog returns within
// probeTimeout.
func (l *Listener) HasClient() bool {
	if l.pending != nil {
		return true
	}
	l.tcp.SetDeadline(time.Now().Add(probeTimeout))
	conn, err := l.tcp.AcceptTCP()
	if err != nil {
		return false
	}
	l.pending = conn
	return true
}

// Accept hands out the connection parked by HasClient.
func (l *Listener) Accept() (ftp.Conn, error) {
	if l.pending == nil && !l.HasClient() {
		return nil, errors.New("no pending connection")
	}
	conn := l.pending
	l.pending = nil
	return newConn(conn, l.writeTimeout), nil
}

// Addr reports the bound address with the actual port.
func (l *Listener) Addr() netip.AddrPort {
	return l.tcp.Addr().(*net.TCPAddr).AddrPort()
}

// Close closes the listener and any parked connection.
func (l *Listener) Close() error {
	if l.pending != nil {
		l.pending.Close()
		l.pending = nil
	}
	return l.tcp.Close()
}

// Conn adapts a TCP connection to the engine's non-blocking contract. Reads
// drain the kernel buffer into an internal one via short-deadline probes;
// writes carry a bounded deadline.
type Conn struct {
	tcp          *net.TCPConn
	writeTimeout time.Duration

	buf  []byte // bytes probed off the socket, not yet handed to Read
	off  int
	dead bool // peer gone; latches
}

var _ ftp.Conn = &Conn{}

func newConn(tcp *net.TCPConn, writeTimeout time.Duration) *Conn {
	return &Conn{tcp: tcp, writeTimeout: writeTimeout, buf: make([]byte, 0, readBufSize)}
}

// Connected reports whether the peer is still reachable or buffered bytes
// remain to be read.
func (c *Conn) Connected() bool {
	if c.buffered() > 0 {
		return true
	}
	if c.dead {
		return false
	}
	c.probe()
	return !c.dead || c.buffered() > 0
}

// Available returns the number of bytes readable right now.
func (c *Conn) Available() int {
	if c.buffered() == 0 && !c.dead {
		c.probe()
	}
	return c.buffered()
}

// Read hands out buffered bytes only; it never blocks. With nothing
// buffered it returns 0, nil.
func (c *Conn) Read(p []byte) (int, error) {
	if c.buffered() == 0 && !c.dead {
		c.probe()
	}
	n := copy(p, c.buf[c.off:])
	c.off += n
	if c.buffered() == 0 {
		c.buf = c.buf[:0]
		c.off = 0
	}
	return n, nil
}

// Write sends p bounded by the write deadline.
func (c *Conn) Write(p []byte) (int, error) {
	if c.dead {
		return 0, net.ErrClosed
	}
	c.tcp.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	n, err := c.tcp.Write(p)
	if err != nil {
		c.dead = true
		return n, fmt.Errorf("error writing to connection: %w", err)
	}
	return n, nil
}

func (c *Conn) LocalAddr() netip.AddrPort {
	return c.tcp.LocalAddr().(*net.TCPAddr).AddrPort()
}

func (c *Conn) RemoteAddr() netip.AddrPort {
	return c.tcp.RemoteAddr().(*net.TCPAddr).AddrPort()
}

func (c *Conn) Close() error {
	c.dead = true
	return c.tcp.Close()
}

func (c *Conn) buffered() int { return len(c.buf) - c.off }

// probe pulls whatever the kernel already buffered, bounded by the probe
// deadline. EOF or a real error latches the connection dead; a timeout just
// means no bytes yet.
func (c *Conn) probe() {
	if len(c.buf) == cap(c.buf) && c.off == 0 {
		return // internal buffer full
	}
	if c.off > 0 && c.buffered() > 0 {
		n := copy(c.buf, c.buf[c.off:])
		c.buf = c.buf[:n]
		c.off = 0
	} else if c.buffered() == 0 {
		c.buf = c.buf[:0]
		c.off = 0
	}

	c.tcp.SetReadDeadline(time.Now().Add(probeTimeout))
	n, err := c.tcp.Read(c.buf[len(c.buf):cap(c.buf)])
	c.buf = c.buf[:len(c.buf)+n]
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		c.dead = true
		return
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return // nothing ready
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return
	}
	c.dead = true
}
