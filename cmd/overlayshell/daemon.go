package main

import (
	"context"
	"fmt"
	"os"

	"github.com/1broseidon/overlayshell/internal/daemon"
)

func runDaemon(args []string) int {
	fs := newFlagSet("daemon",
		"Usage: overlayshell daemon [--config PATH] [--headless]",
		"",
		"Run the daemon in the foreground. SIGHUP reloads the configuration;",
		"SIGINT and SIGTERM shut down every helper and surface.")
	configPath := fs.String("config", "", "Config file path (default: ~/.config/overlayshell/config.yaml)")
	headless := fs.Bool("headless", false, "Run without a display server, with one virtual 1920x1080 display")
	if code := parse(fs, args, 0, 0); code >= 0 {
		return code
	}

	d, err := daemon.New(daemon.Options{
		ConfigPath: *configPath,
		Headless:   *headless,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		return 1
	}
	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		return 1
	}
	return 0
}
