// Command client transfers a single file to or from an FTP server using the
// blocking client engine.
//
//	client -host ftp.example.com -user alice get remote.txt local.txt
//	client -host ftp.example.com -user alice put local.txt remote.txt
//
// The password is read from FTP_PASS or prompted for on the terminal.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"

	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/ftp"
	"github.com/vortigont/FTPClientServer/netconn"
)

func main() {
	host := flag.String("host", "localhost", "FTP server host")
	port := flag.Uint("port", uint(ftp.ControlPort), "FTP server control port")
	user := flag.String("user", "", "login name")
	localDir := flag.String("dir", ".", "local directory served as transfer root")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] get|put <remote> <local>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	direction, remoteName, localName := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	var mode ftp.TransferMode
	switch direction {
	case "get":
		mode = ftp.Get
	case "put":
		mode = ftp.Put
	default:
		fmt.Fprintf(os.Stderr, "unknown direction %q, want get or put\n", direction)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	client := ftp.NewClient(&netconn.Network{}, filesystem.NewLocalFS(*localDir))
	client.SetLogger(logger)
	client.Begin(ftp.ServerInfo{
		Login:    *user,
		Password: readPassword(*user),
		Host:     *host,
		Port:     uint16(*port),
	})

	began := time.Now()
	status := client.Transfer(localName, remoteName, mode)
	elapsed := time.Since(began)

	if status.Result != ftp.TransferOK {
		color.Red("transfer failed: %s (code %d)", status.Desc, status.Code)
		os.Exit(1)
	}
	color.Green("transfer complete")
	printSummary(direction, remoteName, localName, *localDir, elapsed)
}

// readPassword takes FTP_PASS when set, otherwise prompts without echo.
func readPassword(user string) string {
	if pass, ok := os.LookupEnv("FTP_PASS"); ok {
		return pass
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ""
	}
	fmt.Printf("password for %s: ", user)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(pass)
}

func printSummary(direction, remoteName, localName, localDir string, elapsed time.Duration) {
	size := "?"
	if info, err := os.Stat(localName); err == nil {
		size = fmt.Sprintf("%d B", info.Size())
	} else if info, err := os.Stat(localDir + "/" + localName); err == nil {
		size = fmt.Sprintf("%d B", info.Size())
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Direction", "Remote", "Local", "Size", "Duration")
	table.Options(
		tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}),
		tablewriter.WithPadding(tw.Padding{Left: "  ", Right: "  "}),
	)
	table.Append([]string{direction, remoteName, localName, size, elapsed.Round(time.Millisecond).String()})
	table.Render()
}
