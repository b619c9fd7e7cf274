// Package ftp implements a polled, single-session FTP protocol engine.
//
// Unlike the usual goroutine-per-connection servers, both the Server and the
// Client in this package are driven by a single non-blocking Poll method that
// the embedding application calls on a periodic tick. Each Poll advances the
// session by at most one command and one transfer chunk and returns without
// blocking, which keeps the engine usable on memory-constrained targets where
// spawning tasks or blocking on sockets is not an option.
//
// The engine does not own sockets or files directly: the network is reached
// through the Conn/Listener/Network interfaces (see package netconn for the
// TCP implementation) and the storage backend through filesystem.FS.
package ftp

// StatusCode is a type for FTP reply codes.
type StatusCode = int

const (
	StatusFileStatusOK StatusCode = 150 // File status okay; about to open data connection

	StatusCommandOK                       StatusCode = 200 // Command okay
	StatusSystemStatus                    StatusCode = 211 // System status, or system help reply
	StatusFileStatus                      StatusCode = 213 // File status
	StatusNameSystemType                  StatusCode = 215 // NAME system type
	StatusServiceReadyForNewUser          StatusCode = 220 // Service ready for new user
	StatusServiceClosingControlConnection StatusCode = 221 // Service closing control connection
	StatusClosingDataConnection           StatusCode = 226 // Closing data connection; requested file action successful
	StatusEnteringPassiveMode             StatusCode = 227 // Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	StatusUserLoggedIn                    StatusCode = 230 // User logged in, proceed
	StatusServiceTerminated               StatusCode = 231 // Service terminated
	StatusFileActionOK                    StatusCode = 250 // Requested file action okay, completed
	StatusPathnameCreated                 StatusCode = 257 // "PATHNAME" created

	StatusUserOKNeedPassword StatusCode = 331 // User name okay, need password
	StatusFileActionPending  StatusCode = 350 // Requested file action pending further information

	StatusCantOpenDataConnection          StatusCode = 425 // Can't open data connection
	StatusConnectionClosedTransferAborted StatusCode = 426 // Connection closed; transfer aborted
	StatusInvalidUsernameOrPassword       StatusCode = 430 // Invalid username or password
	StatusRequestedFileActionNotTaken     StatusCode = 450 // Requested file action not taken
	StatusLocalProcessingError            StatusCode = 451 // Requested action aborted: local error in processing

	StatusSyntaxError                   StatusCode = 500 // Syntax error, command unrecognized
	StatusSyntaxErrorInParameters       StatusCode = 501 // Syntax error in parameters or arguments
	StatusCommandNotImplemented         StatusCode = 502 // Command not implemented
	StatusBadSequenceOfCommands         StatusCode = 503 // Bad sequence of commands
	StatusCommandNotImplementedForParam StatusCode = 504 // Command not implemented for that parameter
	StatusNotLoggedIn                   StatusCode = 530 // Not logged in
	StatusFileUnavailable               StatusCode = 550 // Requested action not taken; file unavailable
	StatusFileNameNotAllowed            StatusCode = 553 // Requested action not taken; file name not allowed
)

var statusText = map[StatusCode]string{
	150: "File status okay",
	200: "Command okay",
	211: "System status",
	213: "File status",
	215: "System type",
	220: "Service ready for new user",
	221: "Service closing control connection",
	226: "Closing data connection",
	227: "Entering passive mode",
	230: "User logged in",
	231: "Service terminated",
	250: "Requested file action okay",
	257: "Pathname created",
	331: "User name okay, need password",
	350: "Requested file action pending further information",
	425: "Can't open data connection",
	426: "Connection closed, transfer aborted",
	430: "Invalid username or password",
	450: "Requested file action not taken",
	451: "Local error in processing",
	500: "Syntax error, command unrecognized",
	501: "Syntax error in parameters or arguments",
	502: "Command not implemented",
	503: "Bad sequence of commands",
	504: "Command not implemented for that parameter",
	530: "Not logged in",
	550: "File unavailable",
	553: "File name not allowed",
}

// StatusText returns a short generic description for an FTP reply code.
func StatusText(code StatusCode) string {
	return statusText[code]
}
