package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/overlayshell/internal/logging"
	"github.com/1broseidon/overlayshell/internal/mcp"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: overlayshell mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'overlayshell mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(os.Stderr)
		return 2
	}
}

func runMCPServe(args []string) int {
	fs := newFlagSet("mcp serve",
		"Usage: overlayshell mcp serve",
		"",
		"Start the MCP server on stdio. Tools forward to the running daemon,",
		"so 'overlayshell daemon' must be started first.")
	socket := fs.String("socket", "", socketUsage)
	logLevel := fs.String("log-level", "warn", "Log level for stderr (debug, info, warn, error)")
	if code := parse(fs, args, 0, 0); code >= 0 {
		return code
	}

	// stdout carries the protocol; logs go to stderr only.
	logger, err := logging.New(logging.Options{Level: *logLevel, Format: "text", Output: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(clientFor(*socket), logger.Logger)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", slog.Any("error", err))
		return 1
	}
	return 0
}
