package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/overlayshell/internal/surface"
)

// surfaceItem implements list.Item for the surfaces tab.
type surfaceItem struct {
	info surface.Info
}

func (i surfaceItem) Title() string {
	mark := dimStyle.Render("○")
	if i.info.Connected {
		mark = okStyle.Render("●")
	}
	return mark + " " + i.info.ID
}

func (i surfaceItem) Description() string { return "" }
func (i surfaceItem) FilterValue() string { return i.info.ID }

// SurfacesTab lists surfaces on the left and details the selected one on
// the right.
type SurfacesTab struct {
	list   list.Model
	width  int
	height int
}

func NewSurfacesTab() SurfacesTab {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Surfaces"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)

	return SurfacesTab{list: l}
}

// SetSurfaces replaces the items, keeping the selection on the same id
// when it still exists.
func (st SurfacesTab) SetSurfaces(infos []surface.Info) (SurfacesTab, tea.Cmd) {
	selected, _ := st.Selected()
	items := make([]list.Item, 0, len(infos))
	index := 0
	for i, info := range infos {
		if info.ID == selected.ID {
			index = i
		}
		items = append(items, surfaceItem{info: info})
	}
	cmd := st.list.SetItems(items)
	if len(items) > 0 {
		st.list.Select(index)
	}
	return st, cmd
}

// Selected returns the highlighted surface.
func (st SurfacesTab) Selected() (surface.Info, bool) {
	item, ok := st.list.SelectedItem().(surfaceItem)
	if !ok {
		return surface.Info{}, false
	}
	return item.info, true
}

func (st SurfacesTab) Update(msg tea.Msg) (SurfacesTab, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		st.width = msg.Width
		st.height = msg.Height
		st.list.SetSize(st.sidebarWidth(), max(st.height, 1))
		return st, nil
	}
	var cmd tea.Cmd
	st.list, cmd = st.list.Update(msg)
	return st, cmd
}

func (st SurfacesTab) sidebarWidth() int {
	return min(max(st.width*35/100, 20), 40)
}

func (st SurfacesTab) View() string {
	left := lipgloss.NewStyle().
		Width(st.sidebarWidth()).
		Render(st.list.View())

	info, ok := st.Selected()
	if !ok {
		right := dimStyle.Render("no surfaces")
		return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	}

	lines := []string{
		field("id", info.ID),
		field("kind", string(info.Kind)),
		field("screen", fmt.Sprintf("%d", info.ScreenID)),
		field("bounds", fmt.Sprintf("%dx%d+%d+%d", info.Bounds.Width, info.Bounds.Height, info.Bounds.X, info.Bounds.Y)),
		field("visible", fmt.Sprintf("%v", info.Visible)),
		field("input transparent", fmt.Sprintf("%v", info.InputTransparent)),
		field("connected", fmt.Sprintf("%v", info.Connected)),
	}
	if info.Path != "" {
		lines = append(lines, field("path", info.Path))
	}
	if !info.CreatedAt.IsZero() {
		lines = append(lines, field("created", info.CreatedAt.Local().Format("15:04:05")))
	}
	right := lipgloss.JoinVertical(lipgloss.Left, lines...)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}
