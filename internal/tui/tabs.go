package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/overlayshell/internal/ipc"
)

// Tab identifies a dashboard tab.
type Tab int

const (
	TabHelpers Tab = iota
	TabSurfaces
	TabMedia
	TabTaskbar
	tabCount // sentinel for iteration
)

func (t Tab) String() string {
	switch t {
	case TabHelpers:
		return "Helpers"
	case TabSurfaces:
		return "Surfaces"
	case TabMedia:
		return "Media"
	case TabTaskbar:
		return "Taskbar"
	default:
		return "?"
	}
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				Background(lipgloss.Color("236")).
				Padding(0, 2)

	tabBarStyle = lipgloss.NewStyle().
			MarginBottom(1)

	tabGap = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		SetString(" ")

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// renderTabBar renders the tab bar with the given active tab and width.
func renderTabBar(active Tab, width int) string {
	var tabs []string
	for i := Tab(0); i < tabCount; i++ {
		label := fmt.Sprintf("%d:%s", int(i)+1, i)
		if i == active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, intersperse(tabs, tabGap.Render())...)
	return tabBarStyle.Width(width).Render(row)
}

// intersperse inserts sep between each element of items.
func intersperse(items []string, sep string) []string {
	if len(items) <= 1 {
		return items
	}
	result := make([]string, 0, len(items)*2-1)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}

// renderStatusBar renders the daemon connection status bar. status is nil
// when the daemon could not be reached.
func renderStatusBar(status *ipc.StatusData, lastErr error, width int) string {
	var line string
	if status != nil {
		overlays := "hidden"
		if status.OverlaysVisible {
			overlays = "visible"
		}
		parts := []string{
			okStyle.Render("●") + " daemon connected",
			"up " + (time.Duration(status.UptimeSeconds) * time.Second).String(),
			fmt.Sprintf("helpers:%d", status.Helpers),
			fmt.Sprintf("surfaces:%d", status.Surfaces),
			fmt.Sprintf("displays:%d", status.Displays),
			"overlays:" + overlays,
		}
		line = strings.Join(parts, "  ")
	} else {
		line = dimStyle.Render("●") + " daemon not running"
		if lastErr != nil {
			line += "  " + dimStyle.Render(lastErr.Error())
		}
	}

	style := lipgloss.NewStyle().
		Width(width).
		MaxHeight(1).
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("250")).
		Padding(0, 1)
	return style.Render(line)
}

// renderHelpBar renders the bottom keybinding bar, with the tab's own keys
// first.
func renderHelpBar(active Tab, notice string, width int) string {
	help := "tab/1-4: switch  r: restart helpers  t: toggle overlays  q: quit"
	if active == TabSurfaces {
		help = "j/k: select  f: front  i: input transparency  " + help
	}
	if notice != "" {
		help = warnStyle.Render(notice) + "  " + help
	}
	style := lipgloss.NewStyle().
		Width(width).
		MaxHeight(1).
		Foreground(lipgloss.Color("241")).
		Padding(0, 1)
	return style.Render(help)
}

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
