package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/supervisor"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("248"))

func renderHelpers(helpers []supervisor.HelperInfo, now time.Time) string {
	if len(helpers) == 0 {
		return dimStyle.Render("no helpers running")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-28s %-8s %-9s %s", "HELPER", "PID", "STATE", "UPTIME")))
	for _, h := range helpers {
		state := string(h.State)
		switch h.State {
		case supervisor.StateRunning:
			state = okStyle.Render(fmt.Sprintf("%-9s", state))
		case supervisor.StateFailed:
			state = errStyle.Render(fmt.Sprintf("%-9s", state))
		default:
			state = warnStyle.Render(fmt.Sprintf("%-9s", state))
		}
		uptime := "-"
		if !h.StartedAt.IsZero() {
			uptime = now.Sub(h.StartedAt).Truncate(time.Second).String()
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%-28s %-8d %s %s", h.Key.String(), h.PID, state, uptime))
	}
	return b.String()
}

func renderMedia(media *ipc.MediaData) string {
	if media == nil || !media.Available {
		return dimStyle.Render("no media session")
	}
	st := media.State
	status := string(st.PlaybackStatus)
	if st.PlaybackStatus == events.PlaybackPlaying {
		status = okStyle.Render(status)
	}
	lines := []string{
		field("status", status),
		field("title", st.Title),
		field("artist", st.Artist),
		field("album", st.Album),
		field("app", st.AppName),
	}
	if st.Position != nil && st.Duration != nil {
		lines = append(lines, field("position", fmt.Sprintf("%s / %s", msDuration(*st.Position), msDuration(*st.Duration))))
	}
	artwork := "none"
	if media.Artwork {
		artwork = "loaded"
	}
	lines = append(lines, field("artwork", artwork))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func msDuration(ms uint64) string {
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
}

func renderTaskbar(tb *ipc.TaskbarData) string {
	if tb == nil || !tb.Available {
		return dimStyle.Render("no taskbar inventory")
	}
	if len(tb.Inventory.Items) == 0 {
		return dimStyle.Render("taskbar is empty")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-10s %-22s %s", "HWND", "PROCESS", "TITLE")))
	for _, item := range tb.Inventory.Items {
		marker := " "
		if item.IsFocused {
			marker = okStyle.Render("*")
		}
		line := fmt.Sprintf("%s %-10d %-22s %s", marker, item.HWND, item.ProcessName, item.Title)
		if item.IsMinimized {
			line = dimStyle.Render(line)
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}
