package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1broseidon/overlayshell/internal/arbiter"
	"github.com/1broseidon/overlayshell/internal/bridge"
	"github.com/1broseidon/overlayshell/internal/logging"
	"github.com/1broseidon/overlayshell/internal/runtimepath"
	"github.com/1broseidon/overlayshell/internal/sidecar"
)

func runAttach(args []string) int {
	fs := newFlagSet("attach",
		"Usage: overlayshell attach [--bridge PATH | --addr HOST:PORT] <surface-id>",
		"",
		"Connect to the daemon's bridge as <surface-id> and translate JSON lines:",
		"commands on stdin, broadcasts and hover events on stdout. Exits when",
		"stdin closes or the daemon drops the connection.",
		"",
		"Commands:",
		`  {"op":"register","id":"menu"}            track a mouse capturer`,
		`  {"op":"hover","id":"menu","inside":true} report pointer enter/leave`,
		`  {"op":"subscribe","name":"theme"}        receive a broadcast`,
		`  {"op":"emit","name":"theme","data":{}}   send a broadcast`)
	bridgeSocket := fs.String("bridge", "", "Bridge socket (default: $XDG_RUNTIME_DIR/overlayshell/overlayshell-bridge.sock)")
	addr := fs.String("addr", "", "TCP bridge address, used instead of the socket")
	debounce := fs.Duration("debounce", arbiter.DefaultDebounce, "Leave debounce")
	logLevel := fs.String("log-level", "warn", "Log level for stderr (debug, info, warn, error)")
	if code := parse(fs, args, 1, 1); code >= 0 {
		return code
	}
	surfaceID := fs.Arg(0)

	logger, err := logging.New(logging.Options{Level: *logLevel, Output: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Close()

	if *addr == "" && *bridgeSocket == "" {
		path, err := runtimepath.BridgeSocketPath()
		if err != nil {
			return fail(err)
		}
		*bridgeSocket = path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancelDial := context.WithTimeout(ctx, 5*time.Second)
	client, err := bridge.Dial(dialCtx, bridge.DialConfig{
		SocketPath: *bridgeSocket,
		Addr:       *addr,
		SurfaceID:  surfaceID,
		Logger:     logger.Logger,
		OnError: func(m bridge.Message) {
			logger.Warn("bridge error", slog.String("surface", surfaceID), slog.String("error", m.Error))
		},
	})
	cancelDial()
	if err != nil {
		return fail(fmt.Errorf("attach %s: %w", surfaceID, err))
	}
	defer client.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			logger.Info("bridge connection closed", slog.String("surface", surfaceID))
			cancel()
		case <-runCtx.Done():
		}
	}()

	sc := sidecar.New(sidecar.Config{
		SurfaceID:  surfaceID,
		Transport:  client,
		Controller: client,
		Debounce:   *debounce,
		Logger:     logger.Logger,
	}, os.Stdout)
	defer sc.Close()

	if err := sc.Run(runCtx, os.Stdin); err != nil {
		return fail(err)
	}
	return 0
}
