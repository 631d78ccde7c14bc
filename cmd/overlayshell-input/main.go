// overlayshell-input is a key-listener helper for X11 desktops. It prints
// one JSON object per input event on stdout until it is signalled.
//
//	overlayshell-input [--move-interval 16ms] [mouse|complex]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("overlayshell-input", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	moveEvery := fs.Duration("move-interval", 16*time.Millisecond, "minimum gap between reported pointer moves (0 reports all)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: overlayshell-input [flags] [mouse|complex]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "mouse reports pointer events only; complex adds keyboard events.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}
	mode, err := parseMode(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("mode", mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evChan := hook.Start()
	defer hook.End()
	logger.Info("input hook started")

	enc := json.NewEncoder(os.Stdout)
	throttle := moveThrottle{every: *moveEvery}
	for {
		select {
		case <-ctx.Done():
			logger.Info("input hook stopped")
			return 0
		case ev, ok := <-evChan:
			if !ok {
				return 0
			}
			rec, ok := toRecord(ev, mode)
			if !ok || !throttle.allow(rec, time.Now()) {
				continue
			}
			if err := enc.Encode(rec); err != nil {
				// stdout is gone; nobody is listening.
				logger.Warn("write failed", "error", err)
				return 1
			}
		}
	}
}
