package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/overlayshell/internal/runtimepath"
	"github.com/1broseidon/overlayshell/internal/supervisor"
	"github.com/1broseidon/overlayshell/internal/surface"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the default socket.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for the socket at path.
func NewClientAt(path string) *Client {
	return &Client{
		socketPath: path,
		timeout:    DefaultCommandTimeout + 2*time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// call sends command with payload and decodes the response data into out
// when out is non-nil.
func (c *Client) call(command CommandType, payload any, out any) error {
	req := &Request{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", command, err)
		}
		req.Payload = data
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", command, err)
	}
	return nil
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}

func (c *Client) ListHelpers() ([]supervisor.HelperInfo, error) {
	var data HelpersData
	if err := c.call(CommandListHelpers, nil, &data); err != nil {
		return nil, err
	}
	return data.Helpers, nil
}

func (c *Client) StartHelper(kind, mode string) error {
	return c.call(CommandStartHelper, HelperPayload{Kind: kind, Mode: mode}, nil)
}

func (c *Client) StopHelper(kind, mode string) error {
	return c.call(CommandStopHelper, HelperPayload{Kind: kind, Mode: mode}, nil)
}

// RestartHelpers restarts every configured helper.
func (c *Client) RestartHelpers() error {
	return c.call(CommandRestartHelpers, nil, nil)
}

func (c *Client) ListSurfaces() ([]surface.Info, error) {
	var data SurfacesData
	if err := c.call(CommandListSurfaces, nil, &data); err != nil {
		return nil, err
	}
	return data.Surfaces, nil
}

func (c *Client) CreateSurface(screenID int, id, path string) (*surface.Info, error) {
	var info surface.Info
	err := c.call(CommandCreateSurface, CreateSurfacePayload{ScreenID: screenID, ID: id, Path: path}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) DestroySurface(id string) error {
	return c.call(CommandDestroySurface, SurfacePayload{ID: id}, nil)
}

func (c *Client) SetInputTransparent(id string, transparent bool) error {
	return c.call(CommandSetInputTransparent, SetInputTransparentPayload{ID: id, Transparent: transparent}, nil)
}

func (c *Client) BringToFront(id string) error {
	return c.call(CommandBringToFront, SurfacePayload{ID: id}, nil)
}

// ToggleOverlays flips overlay visibility and returns the new state.
func (c *Client) ToggleOverlays() (bool, error) {
	var data OverlaysData
	if err := c.call(CommandToggleOverlays, nil, &data); err != nil {
		return false, err
	}
	return data.Visible, nil
}

// Broadcast sends name with data, which must be valid JSON or empty, to
// every surface.
func (c *Client) Broadcast(name string, data json.RawMessage) error {
	return c.call(CommandBroadcast, BroadcastPayload{Name: name, Data: data}, nil)
}

func (c *Client) GetMedia() (*MediaData, error) {
	var data MediaData
	if err := c.call(CommandGetMedia, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) MediaCommand(command string) error {
	return c.call(CommandMediaCommand, MediaCommandPayload{Command: command}, nil)
}

func (c *Client) GetTaskbar() (*TaskbarData, error) {
	var data TaskbarData
	if err := c.call(CommandGetTaskbar, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) TaskbarCommand(req TaskbarCommandPayload) (*TaskbarResult, error) {
	var res TaskbarResult
	if err := c.call(CommandTaskbarCommand, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload() error {
	return c.call(CommandReload, nil, nil)
}
