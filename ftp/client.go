package ftp

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/tools"
)

// ServerInfo is the remote end a Client talks to.
type ServerInfo struct {
	Login    string
	Password string
	Host     string
	Port     uint16
}

// TransferResult classifies the outcome in a Status record.
type TransferResult uint8

const (
	TransferOK TransferResult = iota
	TransferInProgress
	TransferError
)

func (r TransferResult) String() string {
	switch r {
	case TransferOK:
		return "ok"
	case TransferInProgress:
		return "in progress"
	case TransferError:
		return "error"
	}
	return "unknown"
}

// Status is the sole externally observable outcome of a client transfer.
// Code and Desc carry the last server reply (or a local failure description).
type Status struct {
	Result TransferResult
	Code   StatusCode
	Desc   string
}

// TransferMode selects direction and blocking behavior. The high bit marks
// the blocking variants.
type TransferMode uint8

const (
	Put            TransferMode = 1 | 0x80
	Get            TransferMode = 2 | 0x80
	PutNonBlocking TransferMode = Put & 0x7f
	GetNonBlocking TransferMode = Get & 0x7f
)

func (m TransferMode) blocking() bool { return m&0x80 != 0 }

func (m TransferMode) retrieving() bool { return m&0x7f == GetNonBlocking }

// client protocol phases, in handshake order
type clientState uint8

const (
	cConnect clientState = iota
	cGreet
	cUser
	cPass
	cPassive
	cData
	cTransfer
	cFinish
	cQuit
	// terminal states
	cIdle
	cTimeout
	cError
)

// replyTimeout bounds the wait for each expected server reply.
const replyTimeout = 10 * time.Second

// Client is the polled FTP client engine. It mirrors the server's handshake
// from the initiating side and only ever uses passive mode. Like the Server
// it is single-goroutine: Poll, Transfer and Check must all be called from
// the same goroutine.
type Client struct {
	network Network
	fsys    filesystem.FS
	logger  *slog.Logger
	alloc   Allocator

	server ServerInfo

	state    clientState
	status   Status
	deadline deadline
	expect   StatusCode

	control Conn
	ctrlOut io.Writer
	reply   replyReader

	localName  string
	remoteName string
	mode       TransferMode

	dataHost string
	dataPort uint16
	dataConn Conn

	file filesystem.File
	xfer transfer
}

// NewClient creates a client moving files between fsys and remote servers
// reached over the given network.
func NewClient(network Network, fsys filesystem.FS) *Client {
	return &Client{
		network: network,
		fsys:    fsys,
		logger:  slog.Default(),
		alloc:   &StepAllocator{},
		state:   cIdle,
		status:  Status{Result: TransferOK},
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Begin records the server coordinates and credentials for subsequent
// Transfer calls.
func (c *Client) Begin(server ServerInfo) {
	if server.Port == 0 {
		server.Port = ControlPort
	}
	c.server = server
}

// Transfer starts moving a file between the local filesystem and the remote
// server. For the blocking modes it pumps the state machine until a terminal
// state and returns the final status; for the non-blocking modes it returns
// immediately and the caller pumps via Poll and inspects progress via Check.
func (c *Client) Transfer(localName, remoteName string, mode TransferMode) Status {
	if c.state < cIdle {
		return Status{Result: TransferError, Desc: "transfer already in progress"}
	}
	c.localName = localName
	c.remoteName = remoteName
	c.mode = mode
	c.status = Status{Result: TransferInProgress}
	c.reply.reset()
	c.state = cConnect

	if mode.blocking() {
		for c.state < cIdle {
			c.Poll()
			time.Sleep(time.Millisecond)
		}
	}
	return c.status
}

// Check reports the status of the last Transfer.
func (c *Client) Check() Status { return c.status }

// Stop aborts any transfer in progress and drops the control connection
// without the QUIT exchange.
func (c *Client) Stop() {
	c.cleanup()
	c.state = cIdle
	if c.status.Result == TransferInProgress {
		c.status = Status{Result: TransferError, Desc: "aborted"}
	}
}

// Poll advances the transfer by at most one protocol step or data chunk.
func (c *Client) Poll() {
	switch c.state {
	case cIdle, cTimeout, cError:
		return

	case cConnect:
		conn, err := c.network.Dial(c.server.Host, c.server.Port)
		if err != nil {
			c.fail(0, fmt.Sprintf("cannot connect to %s:%d", c.server.Host, c.server.Port))
			return
		}
		c.control = conn
		c.ctrlOut = tools.NewLogWriter(conn, c.logger)
		c.await(cGreet, StatusServiceReadyForNewUser)

	case cTransfer:
		c.pumpTransfer()

	default:
		c.awaitReply()
	}

	if c.state < cIdle && c.state != cConnect && !c.control.Connected() {
		c.fail(0, "control connection lost")
	}
}

// await arms the reply wait: the state to sit in and the code that lets it
// pass, with a fresh deadline.
func (c *Client) await(state clientState, code StatusCode) {
	c.state = state
	c.expect = code
	c.deadline.reset(replyTimeout)
}

// awaitReply drives every state that is blocked on a server reply. One
// final reply line at most is consumed per poll; continuation lines of
// multi-line replies are skipped.
func (c *Client) awaitReply() {
	code, text, ok := c.reply.read(c.control)
	if !ok {
		if c.deadline.expired() {
			c.logger.Debug("reply timeout", "expected", c.expect)
			c.cleanup()
			c.status = Status{Result: TransferError, Code: 0, Desc: "timeout awaiting reply"}
			c.state = cTimeout
		}
		return
	}
	c.logger.Debug("server reply", "code", code, "text", text)

	// a 230 while still authenticating means the server wants no (further)
	// credentials
	if code == StatusUserLoggedIn && (c.state == cGreet || c.state == cUser || c.state == cPass) {
		c.enterPassive()
		return
	}
	if code != c.expect {
		c.fail(code, text)
		return
	}

	switch c.state {
	case cGreet:
		c.send("USER %s", c.server.Login)
		c.await(cUser, StatusUserOKNeedPassword)
	case cUser:
		c.send("PASS %s", c.server.Password)
		c.await(cPass, StatusUserLoggedIn)
	case cPass:
		c.enterPassive()
	case cPassive:
		if err := c.parsePasv(text); err != nil {
			c.fail(code, fmt.Sprintf("bad passive reply: %v", err))
			return
		}
		c.openData()
	case cData:
		if !c.xfer.start(c.file, c.alloc, c.deadline.clock()) {
			c.fail(0, "out of memory")
			return
		}
		c.file = nil // owned by the transfer now
		c.await(cTransfer, 0)
	case cFinish:
		c.send("QUIT")
		c.await(cQuit, StatusServiceClosingControlConnection)
	case cQuit:
		c.control.Close()
		c.control = nil
		c.ctrlOut = nil
		c.status = Status{Result: TransferOK, Code: code, Desc: text}
		c.state = cIdle
	}
}

func (c *Client) enterPassive() {
	c.send("PASV")
	c.await(cPassive, StatusEnteringPassiveMode)
}

// openData opens the local file, dials the announced passive port and sends
// the transfer command.
func (c *Client) openData() {
	var err error
	if c.mode.retrieving() {
		c.file, err = c.fsys.Create(c.localName)
	} else {
		c.file, err = c.fsys.Open(c.localName)
	}
	if err != nil {
		c.fail(0, fmt.Sprintf("cannot open local file %q: %v", c.localName, err))
		return
	}

	conn, err := c.network.Dial(c.dataHost, c.dataPort)
	if err != nil {
		c.fail(0, fmt.Sprintf("cannot open data connection to %s:%d", c.dataHost, c.dataPort))
		return
	}
	c.dataConn = conn

	if c.mode.retrieving() {
		c.send("RETR %s", c.remoteName)
	} else {
		c.send("STOR %s", c.remoteName)
	}
	c.await(cData, StatusFileStatusOK)
}

// pumpTransfer moves one chunk per poll and, when the engine reports done,
// closes the data connection and waits for the server's 226. A server that
// keeps the data connection open without ever delivering bytes runs into the
// reply deadline: only actual progress refreshes it.
func (c *Client) pumpTransfer() {
	moved := c.xfer.bytes
	var more bool
	if c.mode.retrieving() {
		more = c.xfer.recvChunk(c.dataConn)
	} else {
		more = c.xfer.sendChunk(c.dataConn)
	}
	if more {
		if c.xfer.bytes > moved {
			c.deadline.reset(replyTimeout)
		} else if c.deadline.expired() {
			c.logger.Debug("transfer stalled", "bytes", c.xfer.bytes)
			c.cleanup()
			c.status = Status{Result: TransferError, Desc: "timeout awaiting data"}
			c.state = cTimeout
		}
		return
	}
	c.xfer.close()
	// closing our end signals EOF for uploads
	c.dataConn.Close()
	c.dataConn = nil
	c.await(cFinish, StatusClosingDataConnection)
}

// parsePasv extracts host and port from a 227 text like
// "Entering Passive Mode (192,168,0,1,195,89).".
func (c *Client) parsePasv(text string) error {
	begin := strings.IndexByte(text, '(')
	end := strings.IndexByte(text, ')')
	if begin < 0 || end < begin {
		return fmt.Errorf("no address in %q", text)
	}
	parts := strings.Split(text[begin+1:end], ",")
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
	c.dataHost = fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
	c.dataPort = uint16(octets[4])<<8 | uint16(octets[5])
	return nil
}

func (c *Client) send(format string, a ...any) {
	fmt.Fprintf(c.ctrlOut, format+"\r\n", a...)
}

// fail records an error status and moves to the terminal error state. A bare
// reply line without text falls back to the generic code description.
func (c *Client) fail(code StatusCode, desc string) {
	if desc == "" && code != 0 {
		desc = StatusText(code)
	}
	c.logger.Debug("transfer failed", "code", code, "desc", desc)
	c.cleanup()
	c.status = Status{Result: TransferError, Code: code, Desc: desc}
	c.state = cError
}

// cleanup releases every resource of the running transfer.
func (c *Client) cleanup() {
	c.xfer.close()
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	if c.dataConn != nil {
		c.dataConn.Close()
		c.dataConn = nil
	}
	if c.control != nil {
		c.control.Close()
		c.control = nil
	}
	c.ctrlOut = nil
	c.reply.reset()
}

// replyReader accumulates control-channel bytes into server replies. It
// consumes what is available without blocking and produces at most one final
// reply per call; "NNN-" continuation lines are skipped.
type replyReader struct {
	buf []byte
}

func (r *replyReader) reset() { r.buf = r.buf[:0] }

func (r *replyReader) read(conn Conn) (code StatusCode, text string, ok bool) {
	one := make([]byte, 1)
	for conn.Available() > 0 {
		n, err := conn.Read(one)
		if err != nil || n == 0 {
			return 0, "", false
		}
		b := one[0]
		if b != '\r' && b != '\n' {
			if len(r.buf) < 4*maxLineLen {
				r.buf = append(r.buf, b)
			}
			continue
		}
		line := strings.TrimSpace(string(r.buf))
		r.reset()
		if line == "" {
			continue
		}
		if code, text, ok = parseReply(line); ok {
			return code, text, true
		}
		// continuation line of a multi-line reply
	}
	return 0, "", false
}

// parseReply splits a final reply line "NNN text". Continuation lines
// ("NNN-text") and anything else report ok=false.
func parseReply(line string) (code StatusCode, text string, ok bool) {
	if len(line) < 3 {
		return 0, "", false
	}
	n, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0, "", false
	}
	switch {
	case len(line) == 3:
		return n, "", true
	case line[3] == ' ':
		return n, line[4:], true
	}
	return 0, "", false
}
