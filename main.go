package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vortigont/FTPClientServer/filesystem"
	"github.com/vortigont/FTPClientServer/ftp"
	"github.com/vortigont/FTPClientServer/netconn"
	"github.com/vortigont/FTPClientServer/users"
)

// pumpInterval is the cadence of the engine's poll loop.
const pumpInterval = 10 * time.Millisecond

func main() {
	logger := setupLogger()

	ftpServerRoot := os.Getenv("FTP_SERVER_ROOT")
	if ftpServerRoot == "" {
		ftpServerRoot = "/static"
	}

	opts := []ftp.ServerOption{
		ftp.WithPorts(envPort("FTP_SERVER_PORT", ftp.ControlPort), envPort("FTP_PASV_PORT", ftp.DataPort)),
	}

	userDB := getUsers(logger)
	if userDB != nil {
		opts = append(opts, ftp.WithUsers(userDB))
	}

	ftpServer := ftp.NewServer(&netconn.Network{}, filesystem.NewLocalFS(ftpServerRoot), opts...)
	ftpServer.SetLogger(logger)
	if err := ftpServer.Begin(os.Getenv("FTP_USER"), os.Getenv("FTP_PASS")); err != nil {
		logger.Error("Error starting ftp server", "error", err)
		os.Exit(1)
	}
	if timeout, err := strconv.Atoi(os.Getenv("FTP_TIMEOUT")); err == nil {
		ftpServer.SetTimeout(timeout)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(
		stopChan,
		syscall.SIGHUP,  // (0x1) Terminal hangup
		syscall.SIGINT,  // (0x2) Interrupt from keyboard (Ctrl+C)
		syscall.SIGQUIT, // (0x3) Quit from keyboard
		syscall.SIGTERM, // (0xf) Terminated (generic termination signal)
	)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ftpServer.Poll()
		case <-stopChan:
			ftpServer.Stop()
			return
		}
	}
}

func setupLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	AddSource := false
	switch os.Getenv("LOG_LEVEL") {

	case "DEBUG":
		logLevel = slog.LevelDebug
		AddSource = true
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handlerOptions := &tint.Options{
		AddSource:   AddSource,
		Level:       logLevel,
		ReplaceAttr: nil,
	}

	handler := tint.NewHandler(os.Stdout, handlerOptions)

	logger := slog.New(handler).With("app", "ftp-server")
	logger.Info("Logger initialized", "level", logLevel)

	return logger
}

// getUsers builds a user store from the FTP_DEFAULT_* environment, or
// returns nil when no default user is configured so the server falls back
// to the FTP_USER/FTP_PASS single-credential mode.
func getUsers(logger *slog.Logger) *users.LocalUsers {
	DefaultUser := os.Getenv("FTP_DEFAULT_USER")
	DefaultPass := os.Getenv("FTP_DEFAULT_PASS")
	DefaultIP := os.Getenv("FTP_DEFAULT_IP")
	logger.Debug("FTP_DEFAULT_USER is", "username", DefaultUser)
	logger.Debug("FTP_DEFAULT_IP is", "allowed origin IPs", DefaultIP)
	if DefaultUser == "" || DefaultPass == "" {
		logger.Info("FTP_DEFAULT_USER or FTP_DEFAULT_PASS is empty, not creating a user store")
		return nil
	}

	Users := users.NewLocalUsers(logger)
	user1 := Users.Add(DefaultUser, DefaultPass)
	for _, ip := range strings.Split(DefaultIP, ",") {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if err := user1.AddIP(ip); err != nil {
			logger.Error("Invalid FTP_DEFAULT_IP entry", "ip", ip, "error", err)
		}
	}
	return Users
}

func envPort(name string, fallback uint16) uint16 {
	v, err := strconv.ParseUint(os.Getenv(name), 10, 16)
	if err != nil {
		return fallback
	}
	return uint16(v)
}
