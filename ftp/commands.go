package ftp

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// processCommand runs the handler for the pending command and returns its
// disposition. The resolved path is computed once per cycle, before the
// handler runs, so a cmdRedispatch re-entry sees the same path.
func (s *Server) processCommand() disposition {
	s.cmd.path = pathName(s.cwd, s.cmd.params, true)
	s.logger.Debug("processing command",
		"command", s.cmd.token, "params", s.cmd.params, "path", s.cmd.path, "cwd", s.cwd)

	command, known := lookupCommand(s.cmd.token)
	if !known {
		s.reply(StatusSyntaxError, "unknown command %q", s.cmd.raw)
		return cmdDone
	}

	switch command {
	// access control
	case USER:
		return s.handleUser()
	case PASS:
		return s.handlePass()
	case QUIT:
		s.disconnect(true)
		return cmdQuit
	case NOOP:
		s.reply(StatusCommandOK, "Zzz...")
	case CDUP:
		s.cwd = pathName(s.cwd, "", false)
		s.reply(StatusFileActionOK, "Directory successfully changed.")
	case CWD:
		return s.handleCwd()
	case PWD:
		s.reply(StatusPathnameCreated, "\"%s\" is the current directory.", s.cwd)

	// transfer parameters
	case MODE:
		if s.cmd.params == "S" {
			s.reply(StatusCommandOK, "Mode set to S.")
		} else {
			s.reply(StatusCommandNotImplementedForParam, "Only S(tream) mode is supported")
		}
	case STRU:
		if s.cmd.params == "F" {
			s.reply(StatusCommandOK, "Structure set to F.")
		} else {
			s.reply(StatusCommandNotImplementedForParam, "Only F(ile) is supported")
		}
	case TYPE:
		switch s.cmd.params {
		case "A":
			s.reply(StatusCommandOK, "TYPE is now ASCII.")
		case "I":
			s.reply(StatusCommandOK, "TYPE is now 8-bit Binary.")
		default:
			s.reply(StatusCommandNotImplementedForParam, "Unrecognised TYPE.")
		}
	case PASV:
		// re-negotiating the data channel kills any transfer running on it
		if s.transferState != tIdle {
			s.abortTransfer()
		}
		s.handlePasv()
	case PORT:
		if s.transferState != tIdle {
			s.abortTransfer()
		}
		if err := s.data.enterActive(s.cmd.params); err != nil {
			s.logger.Debug("bad PORT parameters", "params", s.cmd.params, "error", err)
			s.reply(StatusSyntaxErrorInParameters, "Can't interpret parameters")
		} else {
			s.reply(StatusCommandOK, "PORT command successful")
		}

	// service
	case ABOR:
		s.abortTransfer()
		s.reply(StatusClosingDataConnection, "Data connection closed")
	case DELE:
		s.handleDele()
	case LIST, NLST, MLSD:
		return s.handleList(command)
	case RETR:
		return s.handleRetr()
	case STOR:
		return s.handleStor()
	case MKD:
		s.handleMkd()
	case RMD:
		s.handleRmd()
	case RNFR:
		s.handleRnfr()
	case RNTO:
		s.handleRnto()
	case SITE:
		s.reply(StatusCommandNotImplemented, "SITE command not implemented")
	case SYST:
		s.reply(StatusNameSystemType, "UNIX Type: L8")

	// RFC 3659 extensions
	case FEAT:
		fmt.Fprintf(s.ctrlOut, "211-Features:\r\n  MLSD\r\n  MDTM\r\n  SIZE\r\n211 End.\r\n")
		// answerable before login, must not advance the login sequence
		return cmdRejected
	case MDTM:
		s.handleMdtm()
	case SIZE:
		s.handleSize()
	}
	return cmdDone
}

func (s *Server) handleUser() disposition {
	if s.accounts != nil {
		if _, err := s.accounts.Get(s.cmd.params); err != nil {
			s.reply(StatusInvalidUsernameOrPassword, "User not found.")
			return cmdRejected
		}
		s.loginUser = s.cmd.params
		return cmdDone
	}
	if s.username != "" && s.username != s.cmd.params {
		s.reply(StatusInvalidUsernameOrPassword, "User not found.")
		return cmdRejected
	}
	return cmdDone
}

func (s *Server) handlePass() disposition {
	if s.accounts != nil {
		user, err := s.accounts.Get(s.loginUser)
		if err != nil || !user.Verify(s.cmd.params) ||
			!user.AllowedFrom(s.control.RemoteAddr().Addr()) {
			s.reply(StatusInvalidUsernameOrPassword, "Password invalid.")
			return cmdRejected
		}
		return cmdDone
	}
	if s.password != "" && s.password != s.cmd.params {
		s.reply(StatusInvalidUsernameOrPassword, "Password invalid.")
		return cmdRejected
	}
	return cmdDone
}

func (s *Server) handleCwd() disposition {
	switch s.cmd.params {
	case ".": // 'CWD .' is the same as PWD
		s.cmd.token = PWD
		return cmdRedispatch
	case "..": // 'CWD ..' is the same as CDUP
		s.cmd.token = CDUP
		return cmdRedispatch
	}
	if !s.fsys.HasDirectories() {
		// flat backends have no directory tree, any path is ok
		s.cwd = s.cmd.path
		s.reply(StatusFileActionOK, "Directory successfully changed.")
		return cmdDone
	}
	if info, err := s.fsys.Stat(s.cmd.path); err == nil && info.IsDir() {
		s.cwd = s.cmd.path
		s.reply(StatusFileActionOK, "Directory successfully changed.")
	} else {
		s.reply(StatusFileUnavailable, "Failed to change directory.")
	}
	return cmdDone
}

// handlePasv re-binds the data channel to passive mode and announces the
// listener in the comma-octet form clients expect.
func (s *Server) handlePasv() {
	port := s.data.enterPassive()
	addr := s.control.LocalAddr().Addr().Unmap()
	ip := "0.0.0.0"
	if addr.Is4() {
		ip = addr.String()
	}
	s.reply(StatusEnteringPassiveMode, "Entering Passive Mode (%s,%d,%d).",
		strings.ReplaceAll(ip, ".", ","), port>>8, port&255)
}

func (s *Server) handleDele() {
	if s.cmd.params == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file name")
		return
	}
	if !s.fsys.Exists(s.cmd.path) {
		s.reply(StatusFileUnavailable, "Delete operation failed, file '%s' not found.", s.cmd.path)
		return
	}
	if err := s.fsys.Remove(s.cmd.path); err != nil {
		s.logger.Debug("delete failed", "path", s.cmd.path, "error", err)
		s.reply(StatusRequestedFileActionNotTaken, "Delete operation failed.")
		return
	}
	s.reply(StatusFileActionOK, "Delete operation successful.")
}

// handleList streams the directory content for LIST, NLST and MLSD. The
// whole listing goes out in one cycle; directory listings are small enough
// that chunking them like file transfers is not worth the state.
func (s *Server) handleList(command Command) disposition {
	rc := s.data.establish()
	if rc < 0 {
		s.reply(StatusCantOpenDataConnection, "No data connection")
		return cmdDone
	}
	if rc == 0 {
		return cmdAgain
	}
	s.reply(StatusFileStatusOK, "Accepted data connection")

	listPath := s.cmd.path
	if s.listFlagFilter {
		// filter out ls-style flags like "-a" some clients pass along
		if dash := strings.LastIndexByte(listPath, '-'); dash > 0 {
			listPath = listPath[:dash]
		}
	}

	entries, err := s.fsys.ReadDir(listPath)
	if err != nil {
		s.logger.Debug("listing failed", "path", listPath, "error", err)
		s.reply(StatusFileUnavailable, "Can't open directory %s", listPath)
		s.data.closeConn()
		return cmdDone
	}

	count := 0
	for _, entry := range entries {
		count++
		switch command {
		case LIST:
			listEntry(s.data.conn, entry.IsDir(), entry.Size(), entry.ModTime(), entry.Name())
		case MLSD:
			mlsdEntry(s.data.conn, entry.IsDir(), entry.Size(), entry.ModTime(), entry.Name())
		case NLST:
			fmt.Fprintf(s.data.conn, "%s\r\n", entry.Name())
		}
	}

	if command == MLSD {
		fmt.Fprintf(s.ctrlOut, "226-options: -a -l\r\n")
	}
	s.reply(StatusClosingDataConnection, "%d matches total", count)
	s.data.closeConn()
	return cmdDone
}

func (s *Server) handleRetr() disposition {
	if s.cmd.params == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file name")
		return cmdDone
	}
	// open the file once; a cmdAgain re-entry keeps it while the data
	// connection comes up
	if s.file == nil {
		info, err := s.fsys.Stat(s.cmd.path)
		if err != nil {
			s.reply(StatusFileUnavailable, "File '%s' not found.", s.cmd.params)
			return cmdDone
		}
		if info.IsDir() {
			s.reply(StatusRequestedFileActionNotTaken, "Cannot open file \"%s\".", s.cmd.params)
			return cmdDone
		}
		file, err := s.fsys.Open(s.cmd.path)
		if err != nil {
			s.logger.Debug("open failed", "path", s.cmd.path, "error", err)
			s.reply(StatusFileUnavailable, "File '%s' not found.", s.cmd.params)
			return cmdDone
		}
		s.file = file
	}

	rc := s.data.establish()
	if rc < 0 {
		s.reply(StatusCantOpenDataConnection, "No data connection")
		s.releaseFile()
		return cmdDone
	}
	if rc == 0 {
		return cmdAgain
	}

	if !s.xfer.start(s.file, s.alloc, s.deadline.clock()) {
		s.releaseFile()
		s.data.closeConn()
		s.reply(StatusLocalProcessingError, "Internal error. Not enough memory.")
		return cmdDone
	}
	s.file = nil // owned by the transfer now
	s.transferState = tRetrieve
	s.logger.Debug("sending file", "path", s.cmd.path, "size", s.xfer.total)
	s.reply(StatusFileStatusOK, "%d bytes to download", s.xfer.total)
	return cmdDone
}

func (s *Server) handleStor() disposition {
	if s.cmd.params == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file name.")
		return cmdDone
	}
	if s.file == nil {
		file, err := s.fsys.Create(s.cmd.path)
		if err != nil {
			s.logger.Debug("create failed", "path", s.cmd.path, "error", err)
			s.reply(StatusLocalProcessingError, "Cannot open/create \"%s\"", s.cmd.path)
			return cmdDone
		}
		s.file = file
	}

	rc := s.data.establish()
	if rc < 0 {
		s.reply(StatusCantOpenDataConnection, "No data connection")
		s.releaseFile()
		return cmdDone
	}
	if rc == 0 {
		return cmdAgain
	}

	if !s.xfer.start(s.file, s.alloc, s.deadline.clock()) {
		s.releaseFile()
		s.data.closeConn()
		s.reply(StatusLocalProcessingError, "Internal error. Not enough memory.")
		return cmdDone
	}
	s.file = nil
	s.transferState = tStore
	s.logger.Debug("receiving file", "path", s.cmd.path)
	s.reply(StatusFileStatusOK, "Connected to port %d", s.data.port())
	return cmdDone
}

func (s *Server) handleMkd() {
	if !s.fsys.HasDirectories() {
		s.reply(StatusFileUnavailable, "Create directory operation failed.")
		return
	}
	if err := s.fsys.MakeDir(s.cmd.path); err != nil {
		s.logger.Debug("mkdir failed", "path", s.cmd.path, "error", err)
		s.reply(StatusFileUnavailable, "Create directory operation failed.")
		return
	}
	s.reply(StatusPathnameCreated, "\"%s\" created.", s.cmd.path)
}

func (s *Server) handleRmd() {
	if !s.fsys.HasDirectories() {
		s.reply(StatusFileUnavailable, "Remove directory operation failed.")
		return
	}
	entries, err := s.fsys.ReadDir(s.cmd.path)
	if err != nil {
		s.reply(StatusFileUnavailable, "Remove directory operation failed.")
		return
	}
	if len(entries) > 0 {
		s.reply(StatusFileUnavailable, "Remove directory operation failed, directory is not empty.")
		return
	}
	if err := s.fsys.RemoveDir(s.cmd.path); err != nil {
		s.logger.Debug("rmdir failed", "path", s.cmd.path, "error", err)
		s.reply(StatusFileUnavailable, "Remove directory operation failed.")
		return
	}
	s.reply(StatusFileActionOK, "Remove directory operation successful.")
}

func (s *Server) handleRnfr() {
	if s.cmd.params == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file name")
		return
	}
	if !s.fsys.Exists(s.cmd.path) {
		s.reply(StatusFileUnavailable, "File \"%s\" not found.", s.cmd.path)
		return
	}
	s.renameFrom = s.cmd.path
	s.reply(StatusFileActionPending, "RNFR accepted - file \"%s\" exists, ready for destination", s.cmd.path)
}

func (s *Server) handleRnto() {
	// the rename source never survives RNTO, whatever the outcome
	defer func() { s.renameFrom = "" }()

	switch {
	case s.renameFrom == "":
		s.reply(StatusBadSequenceOfCommands, "Need RNFR before RNTO")
	case s.cmd.params == "":
		s.reply(StatusSyntaxErrorInParameters, "No file name")
	case s.fsys.Exists(s.cmd.path):
		s.reply(StatusFileNameNotAllowed, "\"%s\" already exists.", s.cmd.params)
	default:
		if err := s.fsys.Rename(s.renameFrom, s.cmd.path); err != nil {
			s.logger.Debug("rename failed", "from", s.renameFrom, "to", s.cmd.path, "error", err)
			s.reply(StatusLocalProcessingError, "Rename/move failure.")
		} else {
			s.reply(StatusFileActionOK, "File successfully renamed or moved")
		}
	}
}

func (s *Server) handleMdtm() {
	if s.cmd.params == "" {
		s.reply(StatusFileUnavailable, "Unable to retrieve time")
		return
	}
	info, err := s.fsys.Stat(s.cmd.path)
	if err != nil {
		s.reply(StatusFileUnavailable, "Unable to retrieve time")
		return
	}
	s.reply(StatusFileStatus, "%s", mlsdTime(info.ModTime()))
}

func (s *Server) handleSize() {
	if s.cmd.params == "" {
		s.reply(StatusRequestedFileActionNotTaken, "Cannot open file.")
		return
	}
	info, err := s.fsys.Stat(s.cmd.path)
	if err != nil {
		s.reply(StatusRequestedFileActionNotTaken, "Cannot open file.")
		return
	}
	s.reply(StatusFileStatus, "%d", info.Size())
}

// listEntry writes one unix-style LIST line:
//
//	drwxr-xr-x    2    0    0         0 Apr 01 12:45 aDirectory
//	-rw-r--r--    1    0    0    875315 Mar 23 17:29 aFile
func listEntry(w io.Writer, isDir bool, size int64, modTime time.Time, name string) {
	dirc := func(dir, file byte) byte {
		if isDir {
			return dir
		}
		return file
	}
	if isDir {
		size = 0
	}
	fmt.Fprintf(w, "%crw%cr-%cr-%c    %c    0    0  %8d %s %s\r\n",
		dirc('d', '-'), dirc('x', '-'), dirc('x', '-'), dirc('x', '-'),
		dirc('2', '1'), size, listTime(modTime), name)
}

// mlsdEntry writes one machine-readable MLSD fact line.
func mlsdEntry(w io.Writer, isDir bool, size int64, modTime time.Time, name string) {
	if isDir {
		fmt.Fprintf(w, "modify=%s;UNIX.group=0;UNIX.owner=0;UNIX.mode=0755;type=dir; %s\r\n",
			mlsdTime(modTime), name)
		return
	}
	fmt.Fprintf(w, "modify=%s;UNIX.group=0;UNIX.owner=0;UNIX.mode=0644;size=%d;type=file; %s\r\n",
		mlsdTime(modTime), size, name)
}

// mlsdTime is the RFC 3659 time-val form, also used for MDTM.
func mlsdTime(t time.Time) string { return t.UTC().Format("20060102150405") }

// listTime is the abbreviated form unix ls uses in long listings.
func listTime(t time.Time) string { return t.UTC().Format("Jan 02 15:04") }
