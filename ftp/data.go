package ftp

import (
	"fmt"
	"strconv"
	"strings"
)

// dataChannel negotiates and owns the single data connection of a session.
// In passive mode the peer connects to our pre-bound listener; in active
// mode we dial the address the peer supplied via PORT. A new negotiation
// always tears down the previous data socket first.
type dataChannel struct {
	network  Network
	listener Listener // passive-mode listener, owned by the server
	conn     Conn

	passive  bool
	peerHost string // active-mode target
	peerPort uint16
}

// enterPassive switches to passive mode and discards any live data socket.
// The returned host/port are the listener's, for the 227 announcement.
func (d *dataChannel) enterPassive() (port uint16) {
	d.closeConn()
	d.passive = true
	return d.listener.Addr().Port()
}

// enterActive parses the six comma-separated decimal octets of a PORT
// parameter (4 address octets, then port high/low). Malformed input leaves
// the channel state untouched.
func (d *dataChannel) enterActive(param string) error {
	parts := strings.Split(param, ",")
	if len(parts) != 6 {
		return fmt.Errorf("expected 6 octets, got %d", len(parts))
	}
	octets := make([]int, 6)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return fmt.Errorf("octet %q out of range", p)
		}
		octets[i] = v
	}
	d.closeConn()
	d.passive = false
	d.peerHost = fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
	d.peerPort = uint16(octets[4])<<8 | uint16(octets[5])
	return nil
}

// establish is polled every cycle while a command needs the data channel.
// It returns 1 when a connection is ready, 0 when the caller must poll
// again (passive mode, peer not connected yet) and -1 on failure (active
// connect refused — one attempt, pass or fail).
func (d *dataChannel) establish() int8 {
	if !d.passive {
		d.closeConn()
		conn, err := d.network.Dial(d.peerHost, d.peerPort)
		if err != nil {
			return -1
		}
		d.conn = conn
		return 1
	}
	if d.conn != nil && d.conn.Connected() {
		return 1
	}
	if !d.listener.HasClient() {
		return 0
	}
	d.closeConn()
	conn, err := d.listener.Accept()
	if err != nil {
		return 0
	}
	d.conn = conn
	return 1
}

// port reports the data port in use: the passive listener's, or the one the
// peer supplied via PORT.
func (d *dataChannel) port() uint16 {
	if d.passive {
		return d.listener.Addr().Port()
	}
	return d.peerPort
}

func (d *dataChannel) connected() bool {
	return d.conn != nil && d.conn.Connected()
}

func (d *dataChannel) closeConn() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}
