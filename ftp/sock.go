package ftp

import "net/netip"

// Conn is the socket surface the engine needs: a stream connection with
// strictly non-blocking semantics. Implementations must never block in
// Available, Read or Connected; Write may block only up to a bounded,
// implementation-defined deadline.
type Conn interface {
	// Connected reports whether the peer is still reachable. Once it
	// returns false it keeps returning false.
	Connected() bool
	// Available returns the number of bytes that can be read right now
	// without blocking.
	Available() int
	// Read fills p with at most Available() bytes. When nothing is
	// buffered it returns 0, nil immediately.
	Read(p []byte) (int, error)
	// Write sends p, bounded by the implementation's write deadline.
	Write(p []byte) (int, error)
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	Close() error
}

// Listener is a non-blocking accept surface.
type Listener interface {
	// HasClient reports, without blocking, whether an inbound connection
	// is ready to be accepted.
	HasClient() bool
	// Accept returns a pending connection. Call only after HasClient
	// reported true.
	Accept() (Conn, error)
	// Addr reports the bound address, with the actual port when the
	// listener was opened on port 0.
	Addr() netip.AddrPort
	Close() error
}

// Network hands out listeners and outbound connections. It is the only
// coupling between the engine and the host's TCP stack; see package netconn
// for the standard implementation and the test suites for in-memory ones.
type Network interface {
	Listen(port uint16) (Listener, error)
	// Dial makes one bounded connection attempt; there is no partial
	// state, the attempt either yields a connected Conn or an error.
	Dial(host string, port uint16) (Conn, error)
}
