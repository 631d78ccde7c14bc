package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// Source is the part of ipc.Client the dashboard reads and drives.
type Source interface {
	GetStatus() (*ipc.StatusData, error)
	ListHelpers() ([]supervisor.HelperInfo, error)
	ListSurfaces() ([]surface.Info, error)
	GetMedia() (*ipc.MediaData, error)
	GetTaskbar() (*ipc.TaskbarData, error)
	RestartHelpers() error
	ToggleOverlays() (bool, error)
	BringToFront(id string) error
	SetInputTransparent(id string, transparent bool) error
}

// snapshot is one poll of the daemon.
type snapshot struct {
	status   *ipc.StatusData
	helpers  []supervisor.HelperInfo
	surfaces []surface.Info
	media    *ipc.MediaData
	taskbar  *ipc.TaskbarData
}

type snapshotMsg struct {
	snap snapshot
	err  error
}

type tickMsg time.Time

// statusMsg is sent after an action completes.
type statusMsg struct {
	text string
}

// clearStatusMsg clears the status message after a delay.
type clearStatusMsg struct{}

// model is the root bubbletea model for the dashboard.
type model struct {
	src      Source
	interval time.Duration
	now      func() time.Time

	activeTab   Tab
	snap        snapshot
	connected   bool
	lastErr     error
	surfacesTab SurfacesTab
	notice      string

	width  int
	height int
}

func newModel(src Source, interval time.Duration) model {
	return model{
		src:         src,
		interval:    interval,
		now:         time.Now,
		activeTab:   TabHelpers,
		surfacesTab: NewSurfacesTab(),
	}
}

// poll fetches a snapshot. Only the status call decides whether the
// daemon is reachable; the rest keep their previous values on error.
func poll(src Source) tea.Cmd {
	return func() tea.Msg {
		status, err := src.GetStatus()
		if err != nil {
			return snapshotMsg{err: err}
		}
		snap := snapshot{status: status}
		snap.helpers, _ = src.ListHelpers()
		snap.surfaces, _ = src.ListSurfaces()
		snap.media, _ = src.GetMedia()
		snap.taskbar, _ = src.GetTaskbar()
		return snapshotMsg{snap: snap}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

// action runs fn off the update loop and reports its outcome.
func action(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := fn()
		if err != nil {
			return statusMsg{text: "error: " + err.Error()}
		}
		return statusMsg{text: text}
	}
}

// contentHeight returns the height available for tab content.
func (m model) contentHeight() int {
	// status bar (1) + tab bar (2 with margin) + help bar (1)
	return max(m.height-4, 1)
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.src), m.tick())
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(poll(m.src), m.tick())

	case snapshotMsg:
		if msg.err != nil {
			m.connected = false
			m.lastErr = msg.err
			m.snap.status = nil
			return m, nil
		}
		m.connected = true
		m.lastErr = nil
		m.snap = msg.snap
		var cmd tea.Cmd
		m.surfacesTab, cmd = m.surfacesTab.SetSurfaces(msg.snap.surfaces)
		return m, cmd

	case statusMsg:
		m.notice = msg.text
		return m, tea.Batch(poll(m.src), clearStatusAfter(3*time.Second))

	case clearStatusMsg:
		m.notice = ""
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.surfacesTab, _ = m.surfacesTab.Update(tea.WindowSizeMsg{Width: m.width, Height: m.contentHeight()})
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = Tab(msg.String()[0] - '1')
			return m, nil
		case "r":
			if !m.connected {
				return m, nil
			}
			return m, action(func() (string, error) {
				return "helpers restarted", m.src.RestartHelpers()
			})
		case "t":
			if !m.connected {
				return m, nil
			}
			return m, action(func() (string, error) {
				visible, err := m.src.ToggleOverlays()
				if visible {
					return "overlays: visible", err
				}
				return "overlays: hidden", err
			})
		}
		if m.activeTab == TabSurfaces {
			return m.updateSurfaces(msg)
		}
	}
	return m, nil
}

func (m model) updateSurfaces(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	info, ok := m.surfacesTab.Selected()
	switch msg.String() {
	case "f":
		if !ok || !m.connected {
			return m, nil
		}
		return m, action(func() (string, error) {
			return "raised " + info.ID, m.src.BringToFront(info.ID)
		})
	case "i":
		if !ok || !m.connected {
			return m, nil
		}
		transparent := !info.InputTransparent
		return m, action(func() (string, error) {
			return fmt.Sprintf("%s input transparent: %v", info.ID, transparent),
				m.src.SetInputTransparent(info.ID, transparent)
		})
	}
	var cmd tea.Cmd
	m.surfacesTab, cmd = m.surfacesTab.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.snap.status, m.lastErr, m.width)
	tabBar := renderTabBar(m.activeTab, m.width)
	helpBar := renderHelpBar(m.activeTab, m.notice, m.width)

	var content string
	switch {
	case !m.connected:
		content = dimStyle.Render("waiting for the daemon (overlayshell daemon)")
	case m.activeTab == TabHelpers:
		content = renderHelpers(m.snap.helpers, m.now())
	case m.activeTab == TabSurfaces:
		content = m.surfacesTab.View()
	case m.activeTab == TabMedia:
		content = renderMedia(m.snap.media)
	case m.activeTab == TabTaskbar:
		content = renderTaskbar(m.snap.taskbar)
	}

	usedHeight := lipgloss.Height(statusBar) + lipgloss.Height(tabBar) + lipgloss.Height(helpBar)
	content = lipgloss.NewStyle().
		Width(m.width).
		Height(max(m.height-usedHeight, 1)).
		MaxHeight(max(m.height-usedHeight, 1)).
		Padding(0, 1).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBar,
		tabBar,
		content,
		helpBar,
	)
}
