package ftp

import (
	"errors"
	"fmt"
	"net/netip"
)

// In-memory implementation of the Network/Listener/Conn interfaces. Both
// ends of a connection live in the same goroutine as the engine under test,
// so every scenario is fully deterministic: bytes written on one end are
// available on the other immediately, with no real sockets involved.

type memConn struct {
	inbox  []byte
	closed bool
	peer   *memConn
	local  netip.AddrPort
	remote netip.AddrPort
}

func (c *memConn) Connected() bool {
	if c.closed {
		return false
	}
	return (c.peer != nil && !c.peer.closed) || len(c.inbox) > 0
}

func (c *memConn) Available() int {
	if c.closed {
		return 0
	}
	return len(c.inbox)
}

func (c *memConn) Read(p []byte) (int, error) {
	n := copy(p, c.inbox)
	c.inbox = c.inbox[n:]
	return n, nil
}

func (c *memConn) Write(p []byte) (int, error) {
	if c.closed || c.peer == nil || c.peer.closed {
		return 0, errors.New("connection closed")
	}
	c.peer.inbox = append(c.peer.inbox, p...)
	return len(p), nil
}

func (c *memConn) LocalAddr() netip.AddrPort  { return c.local }
func (c *memConn) RemoteAddr() netip.AddrPort { return c.remote }

func (c *memConn) Close() error {
	c.closed = true
	return nil
}

type memListener struct {
	network *memNetwork
	addr    netip.AddrPort
	backlog []*memConn
	closed  bool
}

func (l *memListener) HasClient() bool { return !l.closed && len(l.backlog) > 0 }

func (l *memListener) Accept() (Conn, error) {
	if !l.HasClient() {
		return nil, errors.New("no pending connection")
	}
	conn := l.backlog[0]
	l.backlog = l.backlog[1:]
	return conn, nil
}

func (l *memListener) Addr() netip.AddrPort { return l.addr }

func (l *memListener) Close() error {
	l.closed = true
	delete(l.network.listeners, l.addr.Port())
	return nil
}

// memNetwork hands out in-memory listeners and connects dials to them by
// port, ignoring the host.
type memNetwork struct {
	listeners map[uint16]*memListener
	nextPort  uint16
}

func newMemNetwork() *memNetwork {
	return &memNetwork{listeners: make(map[uint16]*memListener), nextPort: 40000}
}

func (n *memNetwork) Listen(port uint16) (Listener, error) {
	if port == 0 {
		n.nextPort++
		port = n.nextPort
	}
	if _, taken := n.listeners[port]; taken {
		return nil, fmt.Errorf("port %d already bound", port)
	}
	l := &memListener{
		network: n,
		addr:    netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port),
	}
	n.listeners[port] = l
	return l, nil
}

// Dial connects to a listener on this network. The accepted end lands in the
// listener's backlog; the engine picks it up on its next poll.
func (n *memNetwork) Dial(host string, port uint16) (Conn, error) {
	l, ok := n.listeners[port]
	if !ok || l.closed {
		return nil, fmt.Errorf("connection to %s:%d refused", host, port)
	}
	n.nextPort++
	clientAddr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), n.nextPort)
	client := &memConn{local: clientAddr, remote: l.addr}
	server := &memConn{local: l.addr, remote: clientAddr}
	client.peer = server
	server.peer = client
	l.backlog = append(l.backlog, server)
	return client, nil
}
