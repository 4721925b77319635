package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"watchmand/internal/api"
	"watchmand/internal/client"
	"watchmand/internal/command"
	"watchmand/internal/config"
	"watchmand/internal/journal"
	"watchmand/internal/lock"
	"watchmand/internal/log"
	"watchmand/internal/server"
	"watchmand/internal/sockname"
	"watchmand/internal/tui/monitor"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "start":
		os.Exit(runStart(args[1:]))
	case "monitor":
		os.Exit(runMonitor(args[1:]))
	case "version":
		fmt.Printf("watchmand version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		// Everything else is a command for the running daemon, including
		// invocations that lead with client flags like --pretty.
		os.Exit(runClient(args))
	}
}

func printUsage() {
	fmt.Print(`watchmand - command daemon with a transparent CLI client

Usage:
  watchmand start [flags]                      Run the daemon in the foreground
  watchmand monitor [flags]                    Terminal status dashboard
  watchmand [--pretty] <command> [args...]     Send a command to the running daemon
  watchmand version                            Show client version

Client flags:
  --pretty            Ask the daemon for indented JSON output
  --sockname PATH     Socket of the target instance (default: per-user path,
                      or $WATCHMAND_SOCK)
  --timeout DURATION  Bound the whole exchange (default 30s)

Start flags:
  --config PATH       YAML configuration file
  --sockname PATH     Socket to listen on

The daemon answers every request on the data stream, including rejections:
an unknown command yields a JSON document whose error field describes the
failure, and nothing on the diagnostic stream.
`)
}

// --- CLIENT ---

func runClient(args []string) int {
	fs := flag.NewFlagSet("watchmand", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pretty := fs.Bool("pretty", false, "request indented JSON output")
	sock := fs.String("sockname", "", "daemon socket path")
	timeout := fs.Duration("timeout", 30*time.Second, "exchange timeout")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "watchmand: no command given")
		return 1
	}

	commandName := fs.Arg(0)
	commandArgs := make([]any, 0, fs.NArg()-1)
	for _, a := range fs.Args()[1:] {
		commandArgs = append(commandArgs, a)
	}

	paths, err := sockname.Resolve(*sock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	dispatcher := client.NewDispatcher(&client.SocketTransport{
		Sockname: paths.Socket,
		Timeout:  *timeout,
	})

	data, err := dispatcher.Dispatch(context.Background(), commandName, commandArgs, *pretty)
	if err != nil {
		// Transport fault: the daemon never answered. This is the only
		// case where the client writes to the diagnostic stream.
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	// Relay the daemon's bytes verbatim. An in-band error is a normal
	// completion: the JSON payload is the report.
	_, _ = os.Stdout.Write(data)
	return 0
}

// --- DAEMON ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "path to configuration file")
	sock := fs.String("sockname", "", "socket to listen on")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	explicitSock := *sock
	if explicitSock == "" {
		explicitSock = cfg.Sockname
	}
	paths, err := sockname.Resolve(explicitSock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}
	if err := paths.EnsureRoot(); err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = paths.LogFile
	}
	if err := log.Setup(cfg.LogLevel, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")

	pidLock, err := lock.Acquire(paths.PIDFile)
	if err != nil {
		if pid, readErr := lock.ReadPID(paths.PIDFile); readErr == nil {
			fmt.Fprintf(os.Stderr, "watchmand: %v (held by pid %d)\n", err, pid)
		} else {
			fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		}
		return 1
	}
	defer func() { _ = pidLock.Release() }()

	registry := command.NewRegistry()
	if err := command.RegisterBuiltins(registry); err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}
	for _, name := range cfg.DisabledCommands {
		registry.Deregister(name)
		logger.Info("command disabled by config", "command", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jnl *journal.Store
	if cfg.Journal.Enabled {
		journalPath := cfg.Journal.Path
		if journalPath == "" {
			journalPath = paths.Journal
		}
		jnl, err = journal.Open(ctx, journalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
			return 1
		}
		defer func() { _ = jnl.Close() }()
	}

	srv := server.New(version, paths, cfg, registry, jnl)

	if cfg.Status.Enabled {
		statusSocket := cfg.Status.Socket
		if statusSocket == "" {
			statusSocket = filepath.Join(paths.Root, "status.sock")
		}
		var reader command.JournalReader
		if jnl != nil {
			reader = jnl
		}
		statusSrv := api.New(version, statusSocket, paths.Socket, time.Now(), reader)
		go func() {
			if err := statusSrv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	logger.Info("daemon starting", "version", version, "sockname", paths.Socket, "config_hash", cfg.Hash)

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon failed", "error", err)
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

// --- MONITOR ---

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sock := fs.String("sockname", "", "daemon socket path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	paths, err := sockname.Resolve(*sock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: %v\n", err)
		return 1
	}

	dispatcher := client.NewDispatcher(&client.SocketTransport{
		Sockname: paths.Socket,
		Timeout:  10 * time.Second,
	})

	if _, err := tea.NewProgram(monitor.New(dispatcher)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watchmand: monitor failed: %v\n", err)
		return 1
	}
	return 0
}
