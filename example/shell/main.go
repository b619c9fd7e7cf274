// Command shell is an interactive front-end for the non-blocking client
// engine. Transfers are started non-blocking and pumped with a visible
// progress loop, which is the same pattern an embedding application's main
// loop would use.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"

	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/ftp"
	"github.com/vortigont/FTPClientServer/netconn"
)

var client *ftp.Client

func main() {
	host := flag.String("host", "localhost", "FTP server host")
	port := flag.Uint("port", uint(ftp.ControlPort), "FTP server control port")
	user := flag.String("user", "", "login name")
	pass := flag.String("pass", "", "password")
	localDir := flag.String("dir", ".", "local directory served as transfer root")
	flag.Parse()

	client = ftp.NewClient(&netconn.Network{}, filesystem.NewLocalFS(*localDir))
	client.Begin(ftp.ServerInfo{
		Login:    *user,
		Password: *pass,
		Host:     *host,
		Port:     uint16(*port),
	})

	fmt.Printf("ftp shell — server %s:%d, local root %s\n", *host, *port, *localDir)
	p := prompt.New(
		executor,
		completer,
		prompt.OptionTitle("ftp shell"),
		prompt.OptionPrefix("ftp> "),
		prompt.OptionPrefixTextColor(prompt.Green),
	)
	p.Run()
}

func completer(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "get", Description: "Download a file: get <remote> <local>"},
		{Text: "put", Description: "Upload a file: put <local> <remote>"},
		{Text: "status", Description: "Show the last transfer status"},
		{Text: "quit", Description: "Leave the shell"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func executor(line string) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return
	}

	switch words[0] {
	case "get", "put":
		if len(words) != 3 {
			if words[0] == "get" {
				color.Red("usage: get <remote> <local>")
			} else {
				color.Red("usage: put <local> <remote>")
			}
			return
		}
		runTransfer(words[0], words[1], words[2])
	case "status":
		printStatus(client.Check())
	case "quit", "exit":
		client.Stop()
		os.Exit(0)
	default:
		color.Red("unknown command %q", words[0])
	}
}

// runTransfer starts a non-blocking transfer and pumps it to completion,
// printing a dot per progress interval.
func runTransfer(direction, from, to string) {
	var status ftp.Status
	if direction == "get" {
		status = client.Transfer(to, from, ftp.GetNonBlocking)
	} else {
		status = client.Transfer(from, to, ftp.PutNonBlocking)
	}
	if status.Result == ftp.TransferError {
		printStatus(status)
		return
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	next := time.Now().Add(250 * time.Millisecond)
	for range ticker.C {
		client.Poll()
		status = client.Check()
		if status.Result != ftp.TransferInProgress {
			break
		}
		if time.Now().After(next) {
			fmt.Print(".")
			next = time.Now().Add(250 * time.Millisecond)
		}
	}
	fmt.Println()
	printStatus(status)
}

func printStatus(status ftp.Status) {
	switch status.Result {
	case ftp.TransferOK:
		color.Green("ok: %d %s", status.Code, status.Desc)
	case ftp.TransferInProgress:
		color.Yellow("in progress")
	case ftp.TransferError:
		color.Red("error: %s (code %d)", status.Desc, status.Code)
	}
}
