package ftp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/tools"
	"github.com/vortigont/FTPClientServer/users"
)

const (
	// ControlPort is the default FTP control port.
	ControlPort uint16 = 21
	// DataPort is the default passive-mode data port. A single fixed port
	// is enough for the one-session-at-a-time design.
	DataPort uint16 = 50009
	// DefaultTimeout is the idle disconnect timeout of a logged-in session.
	DefaultTimeout = 5 * time.Minute
	// loginTimeout bounds each step of the login sequence.
	loginTimeout = 10 * time.Second
)

// control connection state sequence is
//
//	cInit -> cWait -> cCheck -> [cUserID] -> [cPassword] -> cLoginOK -> cProcess
//
// where the bracketed states are skipped when no username/password is
// configured.
type cmdState uint8

const (
	cInit cmdState = iota
	cWait
	cCheck
	cUserID
	cPassword
	cLoginOK
	cProcess
)

type transferState uint8

const (
	tIdle transferState = iota
	tRetrieve
	tStore
)

// disposition is a handler's verdict on the current command.
type disposition int8

const (
	// cmdDone marks the command consumed; the login sequence may advance
	// and the session deadline is refreshed.
	cmdDone disposition = iota
	// cmdAgain keeps the command pending; the handler runs again on the
	// next poll (data connection still being established).
	cmdAgain
	// cmdRejected marks the command consumed without advancing the login
	// sequence (failed USER/PASS, pre-login FEAT).
	cmdRejected
	// cmdQuit closes the control connection.
	cmdQuit
	// cmdRedispatch re-enters dispatch in the same cycle with the token
	// the handler substituted (CWD "." becomes PWD, CWD ".." CDUP).
	cmdRedispatch
)

// Server is a polled FTP server for exactly one control connection at a
// time. Construct it with NewServer, open the listeners with Begin and call
// Poll on a periodic tick; every method must be called from the same
// goroutine as Poll.
type Server struct {
	network Network
	fsys    filesystem.FS
	logger  *slog.Logger

	username string
	password string
	accounts users.Users // optional multi-user store, overrides username/password checks

	ctrlPort       uint16
	dataPort       uint16
	timeout        time.Duration
	alloc          Allocator
	listFlagFilter bool

	ctrlListener Listener
	dataListener Listener
	control      Conn
	ctrlOut      io.Writer

	cmdState      cmdState
	transferState transferState
	deadline      deadline

	line       lineReader
	cmd        commandRecord
	cwd        string
	renameFrom string
	loginUser  string

	data dataChannel
	xfer transfer
	file filesystem.File // open file of a command still negotiating its data connection

	running bool
}

// ServerOption adjusts a Server at construction time.
type ServerOption func(*Server)

// WithPorts overrides the control and passive data ports. Port 0 binds an
// ephemeral port; see ControlAddr/DataAddr for the result.
func WithPorts(control, data uint16) ServerOption {
	return func(s *Server) {
		s.ctrlPort = control
		s.dataPort = data
	}
}

// WithUsers validates logins against a user store instead of the single
// Begin(username, password) pair.
func WithUsers(db users.Users) ServerOption {
	return func(s *Server) { s.accounts = db }
}

// WithAllocator replaces the transfer buffer allocator.
func WithAllocator(a Allocator) ServerOption {
	return func(s *Server) { s.alloc = a }
}

// WithListFlagFilter enables a compatibility heuristic for clients that pass
// ls-style flags to LIST ("LIST -a"): the listing path is truncated at its
// last dash. The truncation also fires on legitimate paths containing a
// dash, which is why it is off by default.
func WithListFlagFilter() ServerOption {
	return func(s *Server) { s.listFlagFilter = true }
}

// NewServer creates a server that exposes fsys over the given network.
func NewServer(network Network, fsys filesystem.FS, opts ...ServerOption) *Server {
	s := &Server{
		network:  network,
		fsys:     fsys,
		logger:   slog.Default(),
		ctrlPort: ControlPort,
		dataPort: DataPort,
		timeout:  DefaultTimeout,
		alloc:    &StepAllocator{},
	}
	for _, o := range opts {
		o(s)
	}
	s.data.network = network
	return s
}

// SetLogger replaces the server's logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetTimeout sets the idle disconnect timeout, in seconds, for logged-in
// sessions. It applies from the next deadline refresh.
func (s *Server) SetTimeout(seconds int) {
	if seconds > 0 {
		s.timeout = time.Duration(seconds) * time.Second
	}
}

// Begin opens the control and passive data listeners and arms the session
// state machine. An empty username or password disables that credential
// check; both empty means anonymous access (unless a user store was
// configured, which always requires USER and PASS).
func (s *Server) Begin(username, password string) error {
	if s.running {
		return errors.New("server already started")
	}
	ctrl, err := s.network.Listen(s.ctrlPort)
	if err != nil {
		return fmt.Errorf("error starting control listener: %w", err)
	}
	data, err := s.network.Listen(s.dataPort)
	if err != nil {
		ctrl.Close()
		return fmt.Errorf("error starting data listener: %w", err)
	}
	s.username = username
	s.password = password
	s.ctrlListener = ctrl
	s.dataListener = data
	s.data.listener = data
	s.cmdState = cInit
	s.running = true
	s.logger.Info("FTP server started", "control", ctrl.Addr(), "data", data.Addr())
	return nil
}

// Stop aborts any transfer, drops the client and closes the listeners.
func (s *Server) Stop() {
	if !s.running {
		return
	}
	s.abortTransfer()
	if s.control != nil && s.control.Connected() {
		s.disconnect(false)
	}
	s.resetSession()
	s.ctrlListener.Close()
	s.dataListener.Close()
	s.running = false
	s.logger.Info("FTP server stopped")
}

// ControlAddr reports the bound control listener address.
func (s *Server) ControlAddr() netip.AddrPort { return s.ctrlListener.Addr() }

// DataAddr reports the bound passive data listener address.
func (s *Server) DataAddr() netip.AddrPort { return s.dataListener.Addr() }

// Poll advances the session by at most one command and one transfer chunk
// and returns without blocking. The embedding application calls it on a
// fixed or best-effort cadence.
func (s *Server) Poll() {
	if !s.running {
		return
	}

	switch s.cmdState {
	case cInit:
		if s.control != nil && s.control.Connected() {
			s.abortTransfer()
			s.disconnect(false)
		}
		s.resetSession()
		s.cmdState = cWait

	case cWait:
		// a second connection attempt stays unaccepted in the backlog
		// until this session returns to cInit
		if s.ctrlListener.HasClient() {
			conn, err := s.ctrlListener.Accept()
			if err != nil {
				return
			}
			s.control = conn
			s.ctrlOut = tools.NewLogWriter(conn, s.logger)
			s.deadline.reset(loginTimeout)
			s.cmdState = cCheck
		}

	case cCheck:
		if s.control.Connected() {
			s.logger.Debug("control connection accepted", "remote", s.control.RemoteAddr())
			s.reply(StatusServiceReadyForNewUser, "(FTPClientServer)")
			switch {
			case s.usernameRequired():
				s.cmdState = cUserID
			case s.passwordRequired():
				s.cmdState = cPassword
			default:
				s.cmdState = cLoginOK
			}
		}

	case cLoginOK:
		s.reply(StatusUserLoggedIn, "Login successful.")
		s.deadline.reset(s.timeout)
		s.cmdState = cProcess

	case cUserID, cPassword, cProcess:
		if s.fetchCommand() {
			s.dispatch()
		}
	}

	// general connection handling for an established control connection
	if s.cmdState >= cCheck {
		if s.control == nil || !s.control.Connected() {
			s.logger.Debug("client lost or disconnected")
			s.cmdState = cInit
		} else if s.deadline.expired() {
			s.reply(StatusNotLoggedIn, "Timeout.")
			s.logger.Debug("client connection timed out")
			s.cmdState = cInit
		}

		switch s.transferState {
		case tRetrieve:
			if !s.data.connected() || !s.xfer.sendChunk(s.data.conn) {
				s.closeTransfer()
			}
		case tStore:
			if !s.data.connected() || !s.xfer.recvChunk(s.data.conn) {
				s.closeTransfer()
			}
		}
	}
}

// fetchCommand reports whether a command is ready for dispatch, reading at
// most one complete line from the control connection per poll. A command
// kept pending by cmdAgain is returned again untouched.
func (s *Server) fetchCommand() bool {
	if s.cmd.pending() {
		return true
	}
	line, ok, err := s.line.readLine(s.control)
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			s.reply(StatusSyntaxError, "Line too long")
		}
		return false
	}
	if !ok {
		return false
	}
	s.logger.Debug("received", "line", tools.IsPrintable(line))
	token, raw, params := decodeCommandLine(line)
	s.cmd = commandRecord{token: token, raw: raw, params: params}
	return true
}

// dispatch enforces login sequencing, runs the handler and applies its
// disposition to the session state.
func (s *Server) dispatch() {
	// USER then PASS must come before anything else, except FEAT which is
	// answerable before login
	if s.cmd.token != FEAT &&
		((s.cmdState == cUserID && s.cmd.token != USER) ||
			(s.cmdState == cPassword && s.cmd.token != PASS)) {
		s.reply(StatusNotLoggedIn, "Please login with USER and PASS.")
		s.logger.Debug("ignoring before login", "command", s.cmd.token, "params", s.cmd.params)
		s.cmd.clear()
		return
	}

	rc := s.processCommand()
	for rc == cmdRedispatch {
		rc = s.processCommand()
	}

	switch rc {
	case cmdQuit:
		s.cmdState = cInit

	case cmdDone:
		s.cmd.clear()
		switch s.cmdState {
		case cUserID:
			if s.passwordRequired() {
				s.deadline.reset(loginTimeout)
				s.reply(StatusUserOKNeedPassword, "Please specify the password.")
				s.cmdState = cPassword
			} else {
				s.cmdState = cLoginOK
			}
		case cPassword:
			s.cmdState = cLoginOK
		default:
			s.deadline.reset(s.timeout)
		}

	case cmdRejected:
		s.cmd.clear()

	case cmdAgain:
		// keep the command pending for the next poll
	}
}

func (s *Server) usernameRequired() bool { return s.accounts != nil || s.username != "" }

func (s *Server) passwordRequired() bool { return s.accounts != nil || s.password != "" }

// resetSession clears every per-session field and releases the transfer
// buffer, the open file and the data socket.
func (s *Server) resetSession() {
	s.data.passive = true
	s.cwd = "/"
	s.transferState = tIdle
	s.renameFrom = ""
	s.loginUser = ""
	s.line.reset()
	s.cmd.clear()
	s.xfer.close()
	s.releaseFile()
	s.data.closeConn()
	s.deadline.neverExpires()
}

func (s *Server) releaseFile() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

// disconnect drops the control connection, saying goodbye first when the
// client asked for it.
func (s *Server) disconnect(gracious bool) {
	s.abortTransfer()
	if gracious {
		s.reply(StatusServiceClosingControlConnection, "Goodbye.")
	} else {
		s.reply(StatusServiceTerminated, "Service terminated.")
	}
	if s.control != nil {
		s.control.Close()
		s.control = nil
	}
	s.ctrlOut = nil
}

// abortTransfer tears down any active transfer: buffer freed, file closed,
// data socket dropped. No transfer state survives.
func (s *Server) abortTransfer() {
	if s.transferState > tIdle {
		s.reply(StatusConnectionClosedTransferAborted, "Transfer aborted")
	}
	s.xfer.close()
	s.releaseFile()
	s.data.closeConn()
	s.transferState = tIdle
}

// closeTransfer finishes a completed transfer with a 226 reply carrying
// duration and throughput.
func (s *Server) closeTransfer() {
	ms := s.deadline.clock().Sub(s.xfer.began).Milliseconds()
	if ms > 0 && s.xfer.bytes > 0 {
		s.reply(StatusClosingDataConnection, "File successfully transferred, %d ms, %.2f kB/s.",
			ms, float64(s.xfer.bytes)/float64(ms))
	} else {
		s.reply(StatusClosingDataConnection, "File successfully transferred")
	}
	s.xfer.close()
	s.data.closeConn()
	s.transferState = tIdle
}

func (s *Server) reply(code StatusCode, format string, a ...any) {
	if s.ctrlOut == nil {
		return
	}
	fmt.Fprintf(s.ctrlOut, "%d %s\r\n", code, fmt.Sprintf(format, a...))
}
