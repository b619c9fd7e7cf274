package ftp

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/users"
)

// serverHarness runs a server over the in-memory network with a controllable
// clock and a client-side control connection.
type serverHarness struct {
	t   *testing.T
	net *memNetwork
	srv *Server

	ctrl *memConn
	now  time.Time
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServerHarness(t *testing.T, fsys filesystem.FS, username, password string, opts ...ServerOption) *serverHarness {
	t.Helper()
	h := &serverHarness{
		t:   t,
		net: newMemNetwork(),
		now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	opts = append([]ServerOption{WithPorts(ControlPort, DataPort)}, opts...)
	h.srv = NewServer(h.net, fsys, opts...)
	h.srv.SetLogger(testLogger())
	if err := h.srv.Begin(username, password); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.srv.deadline.now = func() time.Time { return h.now }
	t.Cleanup(h.srv.Stop)
	return h
}

// connect dials the control port and pumps until the greeting went out.
func (h *serverHarness) connect() {
	h.t.Helper()
	conn, err := h.net.Dial("127.0.0.1", ControlPort)
	if err != nil {
		h.t.Fatalf("dial control: %v", err)
	}
	h.ctrl = conn.(*memConn)
	h.pump(4)
}

func (h *serverHarness) pump(n int) {
	for i := 0; i < n; i++ {
		h.srv.Poll()
	}
}

// send writes one command line and pumps the server enough to process it.
func (h *serverHarness) send(line string) {
	h.t.Helper()
	if _, err := h.ctrl.Write([]byte(line + "\r\n")); err != nil {
		h.t.Fatalf("send %q: %v", line, err)
	}
	h.pump(4)
}

// replies drains and returns everything the server wrote to the control
// connection since the last call.
func (h *serverHarness) replies() string {
	out := string(h.ctrl.inbox)
	h.ctrl.inbox = nil
	return out
}

// expect sends a command and verifies the reply contains want.
func (h *serverHarness) expect(line, want string) {
	h.t.Helper()
	h.send(line)
	if got := h.replies(); !strings.Contains(got, want) {
		h.t.Errorf("%q: got reply %q, want %q", line, got, want)
	}
}

// login drives the USER/PASS sequence and discards the replies.
func (h *serverHarness) login(username, password string) {
	h.t.Helper()
	h.connect()
	if got := h.replies(); !strings.Contains(got, "220 ") {
		h.t.Fatalf("no greeting, got %q", got)
	}
	if username != "" {
		h.expect("USER "+username, "331 Please specify the password.")
		h.expect("PASS "+password, "230 Login successful.")
	}
}

// openData negotiates PASV and dials the announced port.
func (h *serverHarness) openData() *memConn {
	h.t.Helper()
	h.send("PASV")
	reply := h.replies()
	if !strings.Contains(reply, "227 Entering Passive Mode (127,0,0,1,") {
		h.t.Fatalf("PASV reply %q", reply)
	}
	conn, err := h.net.Dial("127.0.0.1", DataPort)
	if err != nil {
		h.t.Fatalf("dial data: %v", err)
	}
	return conn.(*memConn)
}

func localFS(t *testing.T) (filesystem.FS, string) {
	t.Helper()
	dir := t.TempDir()
	return filesystem.NewLocalFS(dir), dir
}

func TestLoginSequencing(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.connect()
	if got := h.replies(); !strings.Contains(got, "220 ") {
		t.Fatalf("greeting %q", got)
	}

	// PASS before USER is rejected without advancing
	h.expect("PASS secret", "530 Please login with USER and PASS.")
	// so is any other command
	h.expect("PWD", "530 Please login with USER and PASS.")
	// a wrong user is rejected and the phase stays
	h.expect("USER bob", "430 User not found.")
	h.expect("USER alice", "331 Please specify the password.")
	// a wrong password keeps the session in the password phase
	h.expect("PASS wrong", "430 Password invalid.")
	h.expect("PASS secret", "230 Login successful.")
	h.expect("PWD", "257 \"/\" is the current directory.")
}

func TestAnonymousLogin(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "", "")
	h.connect()
	got := h.replies()
	if !strings.Contains(got, "220 ") || !strings.Contains(got, "230 Login successful.") {
		t.Errorf("anonymous greeting %q, want 220 and 230", got)
	}
	h.expect("PWD", "257 \"/\" is the current directory.")
}

func TestFeatBeforeLogin(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.connect()
	h.replies()

	h.send("FEAT")
	got := h.replies()
	for _, want := range []string{"211-Features:", " MLSD", " MDTM", " SIZE", "211 End."} {
		if !strings.Contains(got, want) {
			t.Errorf("FEAT reply %q missing %q", got, want)
		}
	}
	// FEAT must not have advanced the login sequence
	h.expect("USER alice", "331 Please specify the password.")
}

func TestUserStoreLogin(t *testing.T) {
	fsys, _ := localFS(t)
	db := users.NewLocalUsers(testLogger())
	db.Add("carol", "hunter2")

	h := newServerHarness(t, fsys, "", "", WithUsers(db))
	h.connect()
	h.replies()
	h.expect("USER dave", "430 User not found.")
	h.expect("USER carol", "331 Please specify the password.")
	h.expect("PASS wrong", "430 Password invalid.")
	h.expect("PASS hunter2", "230 Login successful.")
}

func TestPwdNoopIdempotent(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	for i := 0; i < 3; i++ {
		h.expect("PWD", "257 \"/\" is the current directory.")
	}
	cwd := h.srv.cwd
	h.expect("NOOP", "200 Zzz...")
	if h.srv.cwd != cwd {
		t.Errorf("NOOP changed cwd to %q", h.srv.cwd)
	}
}

func TestCwdRedispatch(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0777); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("CWD /sub/deep", "250 Directory successfully changed.")
	// CWD . behaves exactly like PWD
	h.expect("CWD .", "257 \"/sub/deep\" is the current directory.")
	// CWD .. behaves exactly like CDUP
	h.expect("CWD ..", "250 Directory successfully changed.")
	h.expect("PWD", "257 \"/sub\" is the current directory.")
	h.expect("CDUP", "250 Directory successfully changed.")
	h.expect("PWD", "257 \"/\" is the current directory.")
	h.expect("CWD /nope", "550 Failed to change directory.")
}

func TestModeStruType(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("MODE S", "200 Mode set to S.")
	h.expect("MODE B", "504 Only S(tream) mode is supported")
	h.expect("STRU F", "200 Structure set to F.")
	h.expect("STRU R", "504 Only F(ile) is supported")
	h.expect("TYPE A", "200 TYPE is now ASCII.")
	h.expect("TYPE I", "200 TYPE is now 8-bit Binary.")
	h.expect("TYPE X", "504 Unrecognised TYPE.")
	h.expect("SYST", "215 UNIX Type: L8")
	h.expect("SITE CHMOD", "502 SITE command not implemented")
	h.expect("XYZZY", "500 unknown command \"XYZZY\"")
}

func TestRenameSequence(t *testing.T) {
	fsys, dir := localFS(t)
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0666); err != nil {
			t.Fatal(err)
		}
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("RNTO b.txt", "503 Need RNFR before RNTO")
	h.expect("RNFR missing.txt", "550 File \"/missing.txt\" not found.")
	h.expect("RNFR a.txt", "350 RNFR accepted - file \"/a.txt\" exists, ready for destination")
	// target exists: rejected, and the pending source is cleared
	h.expect("RNTO b.txt", "553 \"b.txt\" already exists.")
	h.expect("RNTO c.txt", "503 Need RNFR before RNTO")

	h.expect("RNFR a.txt", "350 RNFR accepted")
	h.expect("RNTO c.txt", "250 File successfully renamed or moved")
	if _, err := os.Stat(filepath.Join(dir, "c.txt")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err == nil {
		t.Error("source file still present after rename")
	}
}

func TestMkdRmdDele(t *testing.T) {
	fsys, dir := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("MKD stuff", "257 \"/stuff\" created.")
	if info, err := os.Stat(filepath.Join(dir, "stuff")); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stuff", "f.txt"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}
	h.expect("RMD stuff", "550 Remove directory operation failed, directory is not empty.")
	h.expect("DELE stuff/f.txt", "250 Delete operation successful.")
	h.expect("RMD stuff", "250 Remove directory operation successful.")
	h.expect("DELE nope.txt", "550 Delete operation failed, file '/nope.txt' not found.")
	h.expect("DELE", "501 No file name")
}

func TestSizeMdtm(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "f.bin"), make([]byte, 1234), 0666); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("SIZE f.bin", "213 1234")
	h.expect("SIZE nope.bin", "450 Cannot open file.")

	h.send("MDTM f.bin")
	got := strings.TrimSpace(h.replies())
	if !strings.HasPrefix(got, "213 ") || len(got) != len("213 ")+14 {
		t.Errorf("MDTM reply %q, want 213 with a 14-digit timestamp", got)
	}
	h.expect("MDTM nope.bin", "550 Unable to retrieve time")
}

func TestRetrNonexistentNoDataAttempt(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("RETR nonexistent.txt", "550 File 'nonexistent.txt' not found.")
	if h.srv.data.conn != nil {
		t.Error("data connection attempted for a missing file")
	}
	if h.srv.transferState != tIdle {
		t.Error("transfer state changed for a missing file")
	}
	// the session is still usable
	h.expect("NOOP", "200 Zzz...")
}

func TestRetrNoDataConnection(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	// PORT to a dead address: the single dial attempt fails
	h.expect("PORT 127,0,0,1,1,1", "200 PORT command successful")
	h.expect("RETR f.txt", "425 No data connection")
	if h.srv.file != nil {
		t.Error("file handle leaked after failed data connect")
	}
}

func TestPasvListEmptyDirectory(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	data := h.openData()
	h.send("LIST")
	got := h.replies()
	if !strings.Contains(got, "150 Accepted data connection") {
		t.Errorf("LIST reply %q missing 150", got)
	}
	if !strings.Contains(got, "226 0 matches total") {
		t.Errorf("LIST reply %q missing 226 total", got)
	}
	if len(data.inbox) != 0 {
		t.Errorf("empty directory produced listing %q", data.inbox)
	}
	if data.Connected() {
		t.Error("data connection left open after LIST")
	}
}

func TestListFormats(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "docs"), 0777); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	data := h.openData()
	h.send("LIST")
	h.replies()
	listing := string(data.inbox)
	if !strings.Contains(listing, "-rw-r--r--    1    0    0        11") ||
		!strings.Contains(listing, "hello.txt") {
		t.Errorf("LIST file line missing in %q", listing)
	}
	if !strings.Contains(listing, "drwxr-xr-x    2    0    0         0") ||
		!strings.Contains(listing, "docs") {
		t.Errorf("LIST directory line missing in %q", listing)
	}

	data = h.openData()
	h.send("MLSD")
	got := h.replies()
	listing = string(data.inbox)
	if !strings.Contains(listing, ";UNIX.mode=0644;size=11;type=file; hello.txt") {
		t.Errorf("MLSD file line missing in %q", listing)
	}
	if !strings.Contains(listing, ";UNIX.mode=0755;type=dir; docs") {
		t.Errorf("MLSD directory line missing in %q", listing)
	}
	if !strings.Contains(got, "226-options: -a -l") || !strings.Contains(got, "226 2 matches total") {
		t.Errorf("MLSD control replies %q", got)
	}

	data = h.openData()
	h.send("NLST")
	h.replies()
	listing = string(data.inbox)
	if !strings.Contains(listing, "hello.txt\r\n") || !strings.Contains(listing, "docs\r\n") {
		t.Errorf("NLST listing %q", listing)
	}
}

func TestStorRetrRoundtrip(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	payload := strings.Repeat("roundtrip payload ", 200) // > 1 buffer

	data := h.openData()
	h.send("STOR file.txt")
	if got := h.replies(); !strings.Contains(got, "150 Connected to port") {
		t.Fatalf("STOR reply %q", got)
	}
	data.Write([]byte(payload))
	data.Close()
	h.pump(10)
	if got := h.replies(); !strings.Contains(got, "226 File successfully transferred") {
		t.Fatalf("STOR completion %q", got)
	}

	data = h.openData()
	h.send("RETR file.txt")
	h.pump(10)
	// the download may finish within the send pumps, so 150 and 226 are
	// asserted from a single drain
	got := h.replies()
	if !strings.Contains(got, "150 "+strconv.Itoa(len(payload))+" bytes to download") {
		t.Fatalf("RETR reply %q", got)
	}
	if string(data.inbox) != payload {
		t.Errorf("RETR returned %d bytes, want %d", len(data.inbox), len(payload))
	}
	if !strings.Contains(got, "226 File successfully transferred") {
		t.Errorf("RETR completion %q", got)
	}
}

func TestRetrAllocationFailure(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret",
		WithAllocator(&StepAllocator{Cap: 1}))
	h.login("alice", "secret")

	h.openData()
	h.expect("RETR f.txt", "451 Internal error. Not enough memory.")
	if h.srv.transferState != tIdle {
		t.Error("transfer started without a buffer")
	}
}

func TestAbortDuringTransfer(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), make([]byte, 64*1024), 0666); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.openData()
	h.send("RETR big.bin")
	h.replies()
	if h.srv.transferState != tRetrieve {
		t.Fatal("transfer not running")
	}
	h.expect("ABOR", "426 Transfer aborted")
	if h.srv.transferState != tIdle {
		t.Error("transfer survived ABOR")
	}
	if h.srv.data.conn != nil {
		t.Error("data connection survived ABOR")
	}
}

func TestPasvDuringTransferAborts(t *testing.T) {
	fsys, dir := localFS(t)
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), make([]byte, 64*1024), 0666); err != nil {
		t.Fatal(err)
	}
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.openData()
	h.send("RETR big.bin")
	h.replies()
	if h.srv.transferState != tRetrieve {
		t.Fatal("transfer not running")
	}

	// re-negotiating the data channel mid-transfer must abort cleanly, not
	// leave the pump running against a torn-down connection
	h.send("PASV")
	got := h.replies()
	if !strings.Contains(got, "426 Transfer aborted") {
		t.Errorf("no abort before renegotiation: %q", got)
	}
	if !strings.Contains(got, "227 Entering Passive Mode") {
		t.Errorf("PASV reply missing: %q", got)
	}
	if h.srv.transferState != tIdle {
		t.Error("transfer survived PASV")
	}

	// PORT mid-transfer takes the same path
	h.openData()
	h.send("RETR big.bin")
	h.replies()
	if h.srv.transferState != tRetrieve {
		t.Fatal("transfer not running")
	}
	h.send("PORT 127,0,0,1,7,208")
	got = h.replies()
	if !strings.Contains(got, "426 Transfer aborted") || !strings.Contains(got, "200 PORT command successful") {
		t.Errorf("PORT renegotiation replies %q", got)
	}
	if h.srv.transferState != tIdle {
		t.Error("transfer survived PORT")
	}
}

func TestSessionTimeout(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")
	h.srv.SetTimeout(30)
	h.expect("NOOP", "200 Zzz...") // refresh with the new timeout

	h.now = h.now.Add(31 * time.Second)
	h.pump(2)
	if got := h.replies(); !strings.Contains(got, "530 Timeout.") {
		t.Fatalf("timeout reply %q", got)
	}

	// the next connection attempt is accepted normally
	h.connect()
	if got := h.replies(); !strings.Contains(got, "220 ") {
		t.Errorf("reconnect greeting %q", got)
	}
}

func TestQuit(t *testing.T) {
	fsys, _ := localFS(t)
	h := newServerHarness(t, fsys, "alice", "secret")
	h.login("alice", "secret")

	h.expect("QUIT", "221 Goodbye.")
	h.pump(2)
	if h.ctrl.Connected() {
		t.Error("control connection still open after QUIT")
	}

	h.connect()
	if got := h.replies(); !strings.Contains(got, "220 ") {
		t.Errorf("reconnect greeting %q", got)
	}
}
