// Package mcp exposes the running daemon to MCP clients over stdio. Every
// tool is a thin call through the local IPC client.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/overlayshell/internal/ipc"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

const (
	ServerName    = "overlayshell"
	ServerVersion = "0.1.0"
)

// Daemon is the part of ipc.Client the tools use.
type Daemon interface {
	ListHelpers() ([]supervisor.HelperInfo, error)
	StartHelper(kind, mode string) error
	StopHelper(kind, mode string) error
	RestartHelpers() error
	ListSurfaces() ([]surface.Info, error)
	SetInputTransparent(id string, transparent bool) error
	BringToFront(id string) error
	ToggleOverlays() (bool, error)
	Broadcast(name string, data json.RawMessage) error
	GetMedia() (*ipc.MediaData, error)
	MediaCommand(command string) error
	GetTaskbar() (*ipc.TaskbarData, error)
}

// Server is the MCP server for overlayshell.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates an MCP server that forwards to daemon. A nil daemon
// uses the default IPC socket.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if daemon == nil {
		daemon = ipc.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{daemon: daemon, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_helpers",
		Description: "List the native helper processes the daemon is running, with kind, mode, pid and state.",
	}, s.handleListHelpers)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "start_helper",
		Description: "Start or restart one native helper. Restarting a running helper replaces it.",
	}, s.handleStartHelper)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stop_helper",
		Description: "Stop one native helper. Stopping a helper that is not running is not an error.",
	}, s.handleStopHelper)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "restart_helpers",
		Description: "Restart every configured native helper.",
	}, s.handleRestartHelpers)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_surfaces",
		Description: "List the surfaces: the main surface plus one overlay per display, with bounds and input state.",
	}, s.handleListSurfaces)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_surface_input_transparent",
		Description: "Make a surface pass mouse input through to the windows below it, or capture input again.",
	}, s.handleSetInputTransparent)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "bring_surface_to_front",
		Description: "Raise a surface above other windows.",
	}, s.handleBringToFront)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toggle_overlays",
		Description: "Show or hide every overlay surface. Returns the new visibility.",
	}, s.handleToggleOverlays)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "broadcast",
		Description: "Send a named event with an optional JSON payload to every surface.",
	}, s.handleBroadcast)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "media_control",
		Description: "Control the current media session: skip-track, previous-track, toggle-play-pause, pause or resume.",
	}, s.handleMediaControl)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "media_status",
		Description: "Report the current media session: title, artist, album and playback status.",
	}, s.handleMediaStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "taskbar_items",
		Description: "List open windows from the last taskbar snapshot.",
	}, s.handleTaskbarItems)
}
