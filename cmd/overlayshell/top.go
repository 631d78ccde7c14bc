package main

import (
	"github.com/1broseidon/overlayshell/internal/tui"
)

func runTop(args []string) int {
	fs := newFlagSet("top",
		"Usage: overlayshell top [--interval D]",
		"",
		"Live dashboard of helpers, surfaces, media and taskbar state.",
		"",
		"Keybindings:",
		"  tab, 1-4   Switch tabs",
		"  j/k, ↑/↓   Select a surface (Surfaces tab)",
		"  f          Bring the selected surface to front",
		"  i          Toggle the selected surface's input transparency",
		"  r          Restart helpers",
		"  t          Toggle overlays",
		"  q, Ctrl+C  Quit")
	socket := fs.String("socket", "", socketUsage)
	interval := fs.Duration("interval", tui.DefaultInterval, "Poll interval")
	if code := parse(fs, args, 0, 0); code >= 0 {
		return code
	}

	if err := tui.Run(clientFor(*socket), *interval); err != nil {
		return fail(err)
	}
	return 0
}
