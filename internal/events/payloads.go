package events

// PlaybackStatus is the media session state reported by the media helper.
type PlaybackStatus string

const (
	PlaybackPlaying PlaybackStatus = "Playing"
	PlaybackPaused  PlaybackStatus = "Paused"
	PlaybackStopped PlaybackStatus = "Stopped"
	PlaybackUnknown PlaybackStatus = "Unknown"
)

// MediaState is one media-info record. Position and Duration are in
// milliseconds.
type MediaState struct {
	Title          string         `json:"title,omitempty"`
	Artist         string         `json:"artist,omitempty"`
	Album          string         `json:"album,omitempty"`
	PlaybackStatus PlaybackStatus `json:"playback_status"`
	Position       *uint64        `json:"position,omitempty"`
	Duration       *uint64        `json:"duration,omitempty"`
	AppName        string         `json:"app_name,omitempty"`
	HasArtwork     bool           `json:"has_artwork"`
}

// TrackKey identifies the track for artwork change detection.
func (m MediaState) TrackKey() string {
	return m.Title + "\x00" + m.Artist + "\x00" + m.Album + "\x00" + m.AppName
}

// TaskbarItem is one window or tray entry in a taskbar inventory.
type TaskbarItem struct {
	Title               string `json:"title"`
	ProcessName         string `json:"process_name"`
	ProcessID           uint32 `json:"process_id"`
	HWND                int64  `json:"hwnd"`
	IsVisible           bool   `json:"is_visible"`
	IsMinimized         bool   `json:"is_minimized"`
	IsMaximized         bool   `json:"is_maximized"`
	ClassName           string `json:"class_name"`
	HasTaskbarButton    bool   `json:"has_taskbar_button"`
	WindowState         string `json:"window_state"`
	IsPinned            bool   `json:"is_pinned"`
	ExecutablePath      string `json:"executable_path"`
	ItemType            string `json:"item_type"`
	IsTrayIcon          bool   `json:"is_tray_icon"`
	IsDefinitelyTaskbar bool   `json:"is_definitely_taskbar"`
	IsDefinitelyTray    bool   `json:"is_definitely_tray"`
	IsSystemWindow      bool   `json:"is_system_window"`
	DisplayLocation     string `json:"display_location"`
	IsFocused           bool   `json:"is_focused"`
	IsRunning           bool   `json:"is_running"`
}

// TaskbarInventory is the full item list sent by the taskbar list helper.
// Timestamp is milliseconds since the epoch.
type TaskbarInventory struct {
	Action    string        `json:"action"`
	Items     []TaskbarItem `json:"items"`
	Timestamp uint64        `json:"timestamp"`
}

// Focused returns the focused item, if any.
func (s TaskbarInventory) Focused() (TaskbarItem, bool) {
	for _, item := range s.Items {
		if item.IsFocused {
			return item, true
		}
	}
	return TaskbarItem{}, false
}

// TaskbarItems returns the items that belong on a taskbar: titled windows
// with a real handle.
func (s TaskbarInventory) TaskbarItems() []TaskbarItem {
	var out []TaskbarItem
	for _, item := range s.Items {
		if item.IsDefinitelyTaskbar && item.Title != "" && item.HWND != 0 {
			out = append(out, item)
		}
	}
	return out
}

// GroupedByProcess groups TaskbarItems by process id, keeping the order in
// which each process first appears.
func (s TaskbarInventory) GroupedByProcess() [][]TaskbarItem {
	index := make(map[uint32]int)
	var groups [][]TaskbarItem
	for _, item := range s.TaskbarItems() {
		i, ok := index[item.ProcessID]
		if !ok {
			i = len(groups)
			index[item.ProcessID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}

// TrayItems returns the notification-area items.
func (s TaskbarInventory) TrayItems() []TaskbarItem {
	var out []TaskbarItem
	for _, item := range s.Items {
		if item.IsDefinitelyTray {
			out = append(out, item)
		}
	}
	return out
}

// Taskbar manager notice types.
const (
	NoticeStartup          = "startup"
	NoticeGuardianDisabled = "guardian_disabled"
	NoticeTaskbarHidden    = "taskbar_hidden"
	NoticeTaskbarShown     = "taskbar_shown"
	NoticeRequestShow      = "mouse_request_show"
	NoticeRequestHide      = "mouse_request_hide"
	NoticeTaskbarRestored  = "taskbar_restored"
)

// Point is a screen position in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TaskbarNotice is one record from the taskbar manager helper. Fields not
// relevant to EventType are zero.
type TaskbarNotice struct {
	EventType             string `json:"event_type"`
	Timestamp             uint64 `json:"timestamp,omitempty"`
	MousePosition         *Point `json:"mouse_position,omitempty"`
	TaskbarState          string `json:"taskbar_state,omitempty"`
	WorkspaceTopOffset    *int   `json:"workspace_top_offset,omitempty"`
	WorkspaceBottomOffset *int   `json:"workspace_bottom_offset,omitempty"`
	Reason                string `json:"reason,omitempty"`
}
