// Package tui is the live dashboard behind `overlayshell top`: helpers,
// surfaces, the media session and the taskbar inventory, polled from the
// daemon over IPC.
package tui

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// DefaultInterval is how often the dashboard polls the daemon.
const DefaultInterval = time.Second

// Run opens the dashboard on the terminal and blocks until the user quits.
func Run(src Source, interval time.Duration) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("top requires an interactive terminal (stdin/stdout must be TTYs)")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	p := tea.NewProgram(newModel(src, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
