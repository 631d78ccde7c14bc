package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/overlayshell/internal/events"
)

func (s *Server) handleListHelpers(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListHelpersInput) (*mcpsdk.CallToolResult, ListHelpersOutput, error) {
	helpers, err := s.daemon.ListHelpers()
	if err != nil {
		return nil, ListHelpersOutput{}, err
	}
	out := ListHelpersOutput{Helpers: make([]HelperEntry, 0, len(helpers))}
	for _, h := range helpers {
		out.Helpers = append(out.Helpers, helperEntry(h))
	}
	return nil, out, nil
}

func (s *Server) handleStartHelper(_ context.Context, _ *mcpsdk.CallToolRequest, args HelperInput) (*mcpsdk.CallToolResult, HelperOutput, error) {
	kind := strings.TrimSpace(args.Kind)
	if kind == "" {
		return nil, HelperOutput{}, fmt.Errorf("kind is required")
	}
	if err := s.daemon.StartHelper(kind, args.Mode); err != nil {
		return nil, HelperOutput{}, err
	}
	s.logger.Info("helper started over mcp", "kind", kind, "mode", args.Mode)
	return nil, HelperOutput{Kind: kind, Mode: args.Mode, Running: true}, nil
}

func (s *Server) handleStopHelper(_ context.Context, _ *mcpsdk.CallToolRequest, args HelperInput) (*mcpsdk.CallToolResult, HelperOutput, error) {
	kind := strings.TrimSpace(args.Kind)
	if kind == "" {
		return nil, HelperOutput{}, fmt.Errorf("kind is required")
	}
	if err := s.daemon.StopHelper(kind, args.Mode); err != nil {
		return nil, HelperOutput{}, err
	}
	s.logger.Info("helper stopped over mcp", "kind", kind, "mode", args.Mode)
	return nil, HelperOutput{Kind: kind, Mode: args.Mode, Running: false}, nil
}

func (s *Server) handleRestartHelpers(_ context.Context, _ *mcpsdk.CallToolRequest, _ RestartHelpersInput) (*mcpsdk.CallToolResult, RestartHelpersOutput, error) {
	if err := s.daemon.RestartHelpers(); err != nil {
		return nil, RestartHelpersOutput{}, err
	}
	helpers, err := s.daemon.ListHelpers()
	if err != nil {
		return nil, RestartHelpersOutput{}, err
	}
	return nil, RestartHelpersOutput{Running: len(helpers)}, nil
}

func (s *Server) handleListSurfaces(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListSurfacesInput) (*mcpsdk.CallToolResult, ListSurfacesOutput, error) {
	surfaces, err := s.daemon.ListSurfaces()
	if err != nil {
		return nil, ListSurfacesOutput{}, err
	}
	out := ListSurfacesOutput{Surfaces: make([]SurfaceEntry, 0, len(surfaces))}
	for _, info := range surfaces {
		out.Surfaces = append(out.Surfaces, surfaceEntry(info))
	}
	return nil, out, nil
}

func (s *Server) handleSetInputTransparent(_ context.Context, _ *mcpsdk.CallToolRequest, args SetInputTransparentInput) (*mcpsdk.CallToolResult, SurfaceOutput, error) {
	if args.ID == "" {
		return nil, SurfaceOutput{}, fmt.Errorf("id is required")
	}
	if err := s.daemon.SetInputTransparent(args.ID, args.Transparent); err != nil {
		return nil, SurfaceOutput{}, err
	}
	return nil, SurfaceOutput{ID: args.ID, OK: true}, nil
}

func (s *Server) handleBringToFront(_ context.Context, _ *mcpsdk.CallToolRequest, args SurfaceInput) (*mcpsdk.CallToolResult, SurfaceOutput, error) {
	if args.ID == "" {
		return nil, SurfaceOutput{}, fmt.Errorf("id is required")
	}
	if err := s.daemon.BringToFront(args.ID); err != nil {
		return nil, SurfaceOutput{}, err
	}
	return nil, SurfaceOutput{ID: args.ID, OK: true}, nil
}

func (s *Server) handleToggleOverlays(_ context.Context, _ *mcpsdk.CallToolRequest, _ ToggleOverlaysInput) (*mcpsdk.CallToolResult, ToggleOverlaysOutput, error) {
	visible, err := s.daemon.ToggleOverlays()
	if err != nil {
		return nil, ToggleOverlaysOutput{}, err
	}
	return nil, ToggleOverlaysOutput{Visible: visible}, nil
}

func (s *Server) handleBroadcast(_ context.Context, _ *mcpsdk.CallToolRequest, args BroadcastInput) (*mcpsdk.CallToolResult, BroadcastOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, BroadcastOutput{}, fmt.Errorf("name is required")
	}
	var data json.RawMessage
	if args.Data != nil {
		raw, err := json.Marshal(args.Data)
		if err != nil {
			return nil, BroadcastOutput{}, fmt.Errorf("encode data: %w", err)
		}
		data = raw
	}
	if err := s.daemon.Broadcast(name, data); err != nil {
		return nil, BroadcastOutput{}, err
	}
	return nil, BroadcastOutput{Name: name, Sent: true}, nil
}

func (s *Server) handleMediaControl(_ context.Context, _ *mcpsdk.CallToolRequest, args MediaControlInput) (*mcpsdk.CallToolResult, MediaControlOutput, error) {
	if args.Command == "" {
		return nil, MediaControlOutput{}, fmt.Errorf("command is required")
	}
	if err := s.daemon.MediaCommand(args.Command); err != nil {
		return nil, MediaControlOutput{}, err
	}
	return nil, MediaControlOutput{Command: args.Command, OK: true}, nil
}

func (s *Server) handleMediaStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ MediaStatusInput) (*mcpsdk.CallToolResult, MediaStatusOutput, error) {
	media, err := s.daemon.GetMedia()
	if err != nil {
		return nil, MediaStatusOutput{}, err
	}
	return nil, MediaStatusOutput{Available: media.Available, State: media.State}, nil
}

func (s *Server) handleTaskbarItems(_ context.Context, _ *mcpsdk.CallToolRequest, args TaskbarItemsInput) (*mcpsdk.CallToolResult, TaskbarItemsOutput, error) {
	data, err := s.daemon.GetTaskbar()
	if err != nil {
		return nil, TaskbarItemsOutput{}, err
	}
	items := data.Inventory.Items
	if !args.All {
		items = data.Inventory.TaskbarItems()
	}
	if items == nil {
		items = []events.TaskbarItem{}
	}
	return nil, TaskbarItemsOutput{Available: data.Available, Items: items}, nil
}
