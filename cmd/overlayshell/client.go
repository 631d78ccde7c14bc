package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/1broseidon/overlayshell/internal/ipc"
)

const socketUsage = "Daemon control socket (default: $XDG_RUNTIME_DIR/overlayshell/overlayshell.sock)"

func clientFor(path string) *ipc.Client {
	if path == "" {
		return ipc.NewClient()
	}
	return ipc.NewClientAt(path)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return 0
}

func runStatus(args []string) int {
	fs := newFlagSet("status",
		"Usage: overlayshell status [--json]",
		"",
		"Show daemon status via IPC.")
	socket := fs.String("socket", "", socketUsage)
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if code := parse(fs, args, 0, 0); code >= 0 {
		return code
	}

	status, err := clientFor(*socket).GetStatus()
	if err != nil {
		return fail(err)
	}
	if *jsonOut {
		return printJSON(status)
	}
	fmt.Printf("daemon_running:   %v\n", status.DaemonRunning)
	fmt.Printf("uptime_seconds:   %d\n", status.UptimeSeconds)
	fmt.Printf("config_path:      %s\n", status.ConfigPath)
	fmt.Printf("helpers:          %d\n", status.Helpers)
	fmt.Printf("surfaces:         %d\n", status.Surfaces)
	fmt.Printf("displays:         %d\n", status.Displays)
	fmt.Printf("overlays_visible: %v\n", status.OverlaysVisible)
	if status.BridgeAddr != "" {
		fmt.Printf("bridge:           %s\n", status.BridgeAddr)
	}
	return 0
}

func runReload(args []string) int {
	fs := newFlagSet("reload",
		"Usage: overlayshell reload",
		"",
		"Reload the daemon configuration. Helper settings and the log level",
		"apply immediately; other sections apply on the next daemon start.")
	socket := fs.String("socket", "", socketUsage)
	if code := parse(fs, args, 0, 0); code >= 0 {
		return code
	}
	if err := clientFor(*socket).Reload(); err != nil {
		return fail(err)
	}
	fmt.Println("config reloaded")
	return 0
}

func printHelperUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  overlayshell helper list [--json]")
	fmt.Fprintln(w, "  overlayshell helper start <kind> [mode]")
	fmt.Fprintln(w, "  overlayshell helper stop <kind> [mode]")
	fmt.Fprintln(w, "  overlayshell helper restart")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Kinds: key-listener, media-info, taskbar-item-list, taskbar-manager")
	fmt.Fprintln(w, "Key listener modes: mouse, complex")
}

func runHelper(args []string) int {
	if len(args) == 0 {
		printHelperUsage(os.Stderr)
		return 2
	}
	if isHelp(args[0]) {
		printHelperUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		fs := newFlagSet("helper list", "Usage: overlayshell helper list [--json]")
		socket := fs.String("socket", "", socketUsage)
		jsonOut := fs.Bool("json", false, "Output helpers as JSON")
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}
		helpers, err := clientFor(*socket).ListHelpers()
		if err != nil {
			return fail(err)
		}
		if *jsonOut {
			return printJSON(helpers)
		}
		if len(helpers) == 0 {
			fmt.Println("no helpers running")
			return 0
		}
		for _, h := range helpers {
			fmt.Printf("%-24s pid=%-7d %-8s up %s\n", h.Key, h.PID, h.State, time.Since(h.StartedAt).Truncate(time.Second))
		}
		return 0

	case "start", "stop":
		fs := newFlagSet("helper "+args[0], fmt.Sprintf("Usage: overlayshell helper %s <kind> [mode]", args[0]))
		socket := fs.String("socket", "", socketUsage)
		if code := parse(fs, args[1:], 1, 2); code >= 0 {
			return code
		}
		client := clientFor(*socket)
		var err error
		if args[0] == "start" {
			err = client.StartHelper(fs.Arg(0), fs.Arg(1))
		} else {
			err = client.StopHelper(fs.Arg(0), fs.Arg(1))
		}
		if err != nil {
			return fail(err)
		}
		return 0

	case "restart":
		fs := newFlagSet("helper restart",
			"Usage: overlayshell helper restart",
			"",
			"Stop every helper, then start every enabled helper.")
		socket := fs.String("socket", "", socketUsage)
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}
		if err := clientFor(*socket).RestartHelpers(); err != nil {
			return fail(err)
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown helper command: %s\n\n", args[0])
		printHelperUsage(os.Stderr)
		return 2
	}
}

func printSurfaceUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  overlayshell surface list [--json]")
	fmt.Fprintln(w, "  overlayshell surface create [--screen N] [--path P] <id>")
	fmt.Fprintln(w, "  overlayshell surface destroy <id>")
	fmt.Fprintln(w, "  overlayshell surface front <id>")
	fmt.Fprintln(w, "  overlayshell surface transparent <id> <true|false>")
}

func runSurface(args []string) int {
	if len(args) == 0 {
		printSurfaceUsage(os.Stderr)
		return 2
	}
	if isHelp(args[0]) {
		printSurfaceUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		fs := newFlagSet("surface list", "Usage: overlayshell surface list [--json]")
		socket := fs.String("socket", "", socketUsage)
		jsonOut := fs.Bool("json", false, "Output surfaces as JSON")
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}
		surfaces, err := clientFor(*socket).ListSurfaces()
		if err != nil {
			return fail(err)
		}
		if *jsonOut {
			return printJSON(surfaces)
		}
		for _, s := range surfaces {
			fmt.Printf("%-24s %-8s screen=%d %dx%d+%d+%d visible=%v transparent=%v connected=%v\n",
				s.ID, s.Kind, s.ScreenID, s.Bounds.Width, s.Bounds.Height, s.Bounds.X, s.Bounds.Y,
				s.Visible, s.InputTransparent, s.Connected)
		}
		return 0

	case "create":
		fs := newFlagSet("surface create",
			"Usage: overlayshell surface create [--screen N] [--path P] <id>",
			"",
			"Create an overlay covering a display. The renderer is started with",
			"the surface path.")
		socket := fs.String("socket", "", socketUsage)
		screen := fs.Int("screen", 0, "Display index")
		path := fs.String("path", "", "Path the renderer loads")
		if code := parse(fs, args[1:], 1, 1); code >= 0 {
			return code
		}
		info, err := clientFor(*socket).CreateSurface(*screen, fs.Arg(0), *path)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("created %s on screen %d (%dx%d)\n", info.ID, info.ScreenID, info.Bounds.Width, info.Bounds.Height)
		return 0

	case "destroy", "front":
		fs := newFlagSet("surface "+args[0], fmt.Sprintf("Usage: overlayshell surface %s <id>", args[0]))
		socket := fs.String("socket", "", socketUsage)
		if code := parse(fs, args[1:], 1, 1); code >= 0 {
			return code
		}
		client := clientFor(*socket)
		var err error
		if args[0] == "destroy" {
			err = client.DestroySurface(fs.Arg(0))
		} else {
			err = client.BringToFront(fs.Arg(0))
		}
		if err != nil {
			return fail(err)
		}
		return 0

	case "transparent":
		fs := newFlagSet("surface transparent",
			"Usage: overlayshell surface transparent <id> <true|false>",
			"",
			"A transparent surface passes pointer input to the windows beneath it.")
		socket := fs.String("socket", "", socketUsage)
		if code := parse(fs, args[1:], 2, 2); code >= 0 {
			return code
		}
		transparent, err := strconv.ParseBool(fs.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid transparency %q\n", fs.Arg(1))
			return 2
		}
		if err := clientFor(*socket).SetInputTransparent(fs.Arg(0), transparent); err != nil {
			return fail(err)
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown surface command: %s\n\n", args[0])
		printSurfaceUsage(os.Stderr)
		return 2
	}
}

func runOverlays(args []string) int {
	if len(args) == 0 || isHelp(args[0]) || args[0] != "toggle" {
		fmt.Fprintln(os.Stderr, "Usage: overlayshell overlays toggle")
		if len(args) > 0 && isHelp(args[0]) {
			return 0
		}
		return 2
	}
	fs := newFlagSet("overlays toggle", "Usage: overlayshell overlays toggle")
	socket := fs.String("socket", "", socketUsage)
	if code := parse(fs, args[1:], 0, 0); code >= 0 {
		return code
	}
	visible, err := clientFor(*socket).ToggleOverlays()
	if err != nil {
		return fail(err)
	}
	if visible {
		fmt.Println("overlays: visible")
	} else {
		fmt.Println("overlays: hidden")
	}
	return 0
}

func runBroadcast(args []string) int {
	fs := newFlagSet("broadcast",
		"Usage: overlayshell broadcast <name> [json]",
		"",
		"Send a broadcast to every surface. The payload must be valid JSON;",
		"omit it to send null.")
	socket := fs.String("socket", "", socketUsage)
	if code := parse(fs, args, 1, 2); code >= 0 {
		return code
	}
	var data json.RawMessage
	if fs.NArg() == 2 {
		data = json.RawMessage(fs.Arg(1))
		if !json.Valid(data) {
			fmt.Fprintln(os.Stderr, "broadcast payload is not valid JSON")
			return 2
		}
	}
	if err := clientFor(*socket).Broadcast(fs.Arg(0), data); err != nil {
		return fail(err)
	}
	return 0
}

func runMedia(args []string) int {
	fs := newFlagSet("media",
		"Usage: overlayshell media [--json] [command]",
		"",
		"Without a command, show the current media session.",
		"Commands: skip-track, previous-track, toggle-play-pause, pause, resume")
	socket := fs.String("socket", "", socketUsage)
	jsonOut := fs.Bool("json", false, "Output the session as JSON")
	if code := parse(fs, args, 0, 1); code >= 0 {
		return code
	}
	client := clientFor(*socket)

	if fs.NArg() == 1 {
		if err := client.MediaCommand(fs.Arg(0)); err != nil {
			return fail(err)
		}
		return 0
	}

	media, err := client.GetMedia()
	if err != nil {
		return fail(err)
	}
	if *jsonOut {
		return printJSON(media)
	}
	if !media.Available {
		fmt.Println("no media session")
		return 0
	}
	st := media.State
	fmt.Printf("status:  %s\n", st.PlaybackStatus)
	fmt.Printf("title:   %s\n", st.Title)
	fmt.Printf("artist:  %s\n", st.Artist)
	fmt.Printf("album:   %s\n", st.Album)
	fmt.Printf("app:     %s\n", st.AppName)
	fmt.Printf("artwork: %v\n", media.Artwork)
	return 0
}

func printTaskbarUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  overlayshell taskbar list [--json]")
	fmt.Fprintln(w, "  overlayshell taskbar do [--hwnd N] [--path P] [--force] <action>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Window actions (--hwnd): minimize-window, maximize-window, restore-window,")
	fmt.Fprintln(w, "  close-window, focus-window, unfocus-window, toggle-focus-window,")
	fmt.Fprintln(w, "  get-window-screenshot")
	fmt.Fprintln(w, "Other actions: get-executable-icon (--path), start-executable (--path),")
	fmt.Fprintln(w, "  open-start-menu")
}

func runTaskbar(args []string) int {
	if len(args) == 0 {
		printTaskbarUsage(os.Stderr)
		return 2
	}
	if isHelp(args[0]) {
		printTaskbarUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		fs := newFlagSet("taskbar list", "Usage: overlayshell taskbar list [--json]")
		socket := fs.String("socket", "", socketUsage)
		jsonOut := fs.Bool("json", false, "Output the inventory as JSON")
		if code := parse(fs, args[1:], 0, 0); code >= 0 {
			return code
		}
		tb, err := clientFor(*socket).GetTaskbar()
		if err != nil {
			return fail(err)
		}
		if *jsonOut {
			return printJSON(tb)
		}
		if !tb.Available {
			fmt.Println("no taskbar inventory")
			return 0
		}
		for _, item := range tb.Inventory.Items {
			marker := " "
			if item.IsFocused {
				marker = "*"
			}
			fmt.Printf("%s %-10d %-20s %s\n", marker, item.HWND, item.ProcessName, item.Title)
		}
		return 0

	case "do":
		fs := newFlagSet("taskbar do", "Usage: overlayshell taskbar do [--hwnd N] [--path P] [--force] <action>")
		socket := fs.String("socket", "", socketUsage)
		hwnd := fs.Int64("hwnd", 0, "Window handle for window actions and screenshots")
		path := fs.String("path", "", "Executable path for icons and start-executable")
		force := fs.Bool("force", false, "Bypass the screenshot cache")
		if code := parse(fs, args[1:], 1, 1); code >= 0 {
			return code
		}
		res, err := clientFor(*socket).TaskbarCommand(ipc.TaskbarCommandPayload{
			Action: fs.Arg(0),
			HWND:   *hwnd,
			Path:   *path,
			Force:  *force,
		})
		if err != nil {
			return fail(err)
		}
		if res.Image != "" {
			fmt.Println(res.Image)
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown taskbar command: %s\n\n", args[0])
		printTaskbarUsage(os.Stderr)
		return 2
	}
}
