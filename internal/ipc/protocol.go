// Package ipc is the local control channel between the overlayshell CLI
// and the running daemon: one newline-terminated JSON request and one
// response per connection over a unix socket.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus           CommandType = "GET_STATUS"
	CommandListHelpers         CommandType = "LIST_HELPERS"
	CommandStartHelper         CommandType = "START_HELPER"
	CommandStopHelper          CommandType = "STOP_HELPER"
	CommandRestartHelpers      CommandType = "RESTART_HELPERS"
	CommandListSurfaces        CommandType = "LIST_SURFACES"
	CommandCreateSurface       CommandType = "CREATE_SURFACE"
	CommandDestroySurface      CommandType = "DESTROY_SURFACE"
	CommandSetInputTransparent CommandType = "SET_INPUT_TRANSPARENT"
	CommandBringToFront        CommandType = "BRING_TO_FRONT"
	CommandToggleOverlays      CommandType = "TOGGLE_OVERLAYS"
	CommandBroadcast           CommandType = "BROADCAST"
	CommandGetMedia            CommandType = "GET_MEDIA"
	CommandMediaCommand        CommandType = "MEDIA_COMMAND"
	CommandGetTaskbar          CommandType = "GET_TASKBAR"
	CommandTaskbarCommand      CommandType = "TASKBAR_COMMAND"
	CommandReload              CommandType = "RELOAD"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	UptimeSeconds   int64  `json:"uptime_seconds"`
	DaemonRunning   bool   `json:"daemon_running"`
	ConfigPath      string `json:"config_path,omitempty"`
	Helpers         int    `json:"helpers"`
	Surfaces        int    `json:"surfaces"`
	Displays        int    `json:"displays"`
	OverlaysVisible bool   `json:"overlays_visible"`
	BridgeAddr      string `json:"bridge_addr,omitempty"`
}

type HelpersData struct {
	Helpers []supervisor.HelperInfo `json:"helpers"`
}

// HelperPayload names one helper instance for START_HELPER and STOP_HELPER.
type HelperPayload struct {
	Kind string `json:"kind"`
	Mode string `json:"mode,omitempty"`
}

type SurfacesData struct {
	Surfaces []surface.Info `json:"surfaces"`
}

type CreateSurfacePayload struct {
	ScreenID int    `json:"screen_id"`
	ID       string `json:"id"`
	Path     string `json:"path"`
}

// SurfacePayload names one surface for DESTROY_SURFACE and BRING_TO_FRONT.
type SurfacePayload struct {
	ID string `json:"id"`
}

type SetInputTransparentPayload struct {
	ID          string `json:"id"`
	Transparent bool   `json:"transparent"`
}

type OverlaysData struct {
	Visible bool `json:"visible"`
}

type BroadcastPayload struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MediaData is the last media session reported by the media helper.
type MediaData struct {
	Available bool              `json:"available"`
	State     events.MediaState `json:"state"`
	Artwork   bool              `json:"artwork_loaded"`
}

type MediaCommandPayload struct {
	Command string `json:"command"`
}

type TaskbarData struct {
	Available bool                    `json:"available"`
	Inventory events.TaskbarInventory `json:"inventory"`
}

// TaskbarCommandPayload carries one taskbar action. HWND is used by window
// actions and screenshots; Path by icons and start-executable.
type TaskbarCommandPayload struct {
	Action string `json:"action"`
	HWND   int64  `json:"hwnd,omitempty"`
	Path   string `json:"path,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// TaskbarResult is returned by TASKBAR_COMMAND. Image is base64 PNG data
// for icon and screenshot actions.
type TaskbarResult struct {
	Image string `json:"image,omitempty"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("failed to parse request: command is empty")
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
