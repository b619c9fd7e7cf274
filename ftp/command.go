package ftp

import "strings"

// Command is the textual, upper-cased token of an FTP command.
//
// Commands are matched as full strings. The lookup table below is the
// authoritative set of tokens the server dispatches on; anything else falls
// through to a generic 500 reply that echoes the original token.
type Command = string

const (
	// Access control
	USER Command = "USER" // Send username
	PASS Command = "PASS" // Send password
	QUIT Command = "QUIT" // Disconnect from the server
	CWD  Command = "CWD"  // Change working directory
	CDUP Command = "CDUP" // Change to parent directory
	PWD  Command = "PWD"  // Print working directory

	// Transfer parameters
	TYPE Command = "TYPE" // Set data transfer type (ASCII/Binary)
	MODE Command = "MODE" // Set data transfer mode (only Stream)
	STRU Command = "STRU" // Set file structure (only File)
	PASV Command = "PASV" // Enter passive mode
	PORT Command = "PORT" // Supply address/port for active mode

	// Service
	RETR Command = "RETR" // Retrieve a file
	STOR Command = "STOR" // Store a file
	DELE Command = "DELE" // Delete a file
	ABOR Command = "ABOR" // Abort an active transfer
	LIST Command = "LIST" // List directory contents (unix style)
	NLST Command = "NLST" // Name-only directory list
	MKD  Command = "MKD"  // Make directory
	RMD  Command = "RMD"  // Remove directory
	RNFR Command = "RNFR" // Rename from
	RNTO Command = "RNTO" // Rename to
	NOOP Command = "NOOP" // Keep-alive
	SITE Command = "SITE" // Site-specific commands (not implemented)
	SYST Command = "SYST" // Operating system type

	// RFC 3659 extensions
	FEAT Command = "FEAT" // Feature discovery, usable before login
	MLSD Command = "MLSD" // Machine-readable directory listing
	MDTM Command = "MDTM" // File modification time
	SIZE Command = "SIZE" // File size
)

var knownCommands = map[string]Command{
	USER: USER, PASS: PASS, QUIT: QUIT, CWD: CWD, CDUP: CDUP, PWD: PWD,
	TYPE: TYPE, MODE: MODE, STRU: STRU, PASV: PASV, PORT: PORT,
	RETR: RETR, STOR: STOR, DELE: DELE, ABOR: ABOR, LIST: LIST, NLST: NLST,
	MKD: MKD, RMD: RMD, RNFR: RNFR, RNTO: RNTO, NOOP: NOOP, SITE: SITE,
	SYST: SYST, FEAT: FEAT, MLSD: MLSD, MDTM: MDTM, SIZE: SIZE,
}

// commandRecord is the decoded form of one control-connection line. It is
// built once per accumulated line and consumed by exactly one dispatch cycle;
// clear() marks it consumed so the line reader may fetch the next command.
type commandRecord struct {
	token  Command // upper-cased first token, "" when no command is pending
	raw    string  // token as received, for echoing in error replies
	params string  // trimmed parameter string
	path   string  // params resolved against the working directory
}

func (c *commandRecord) pending() bool { return c.token != "" }

func (c *commandRecord) clear() { *c = commandRecord{} }

// decodeCommandLine splits a complete line into the command token and the
// trimmed parameter string. The token is upper-cased; recognition of the
// token is left to the dispatcher.
func decodeCommandLine(line string) (token, raw, params string) {
	raw = line
	if pos := strings.IndexByte(line, ' '); pos >= 0 {
		raw = line[:pos]
		params = strings.TrimSpace(line[pos+1:])
	}
	return strings.ToUpper(raw), raw, params
}

// lookupCommand reports the matching Command for an upper-cased token.
func lookupCommand(token string) (Command, bool) {
	cmd, ok := knownCommands[token]
	return cmd, ok
}
