// Package native drives the bundled helper executables and turns their
// records into typed events.
package native

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/supervisor"
)

// Helper kinds.
const (
	KindKeyListener    = "key-listener"
	KindMediaInfo      = "media-info"
	KindTaskbarList    = "taskbar-item-list"
	KindTaskbarManager = "taskbar-manager"
)

// Key listener modes.
const (
	ModeMouse   = "mouse"
	ModeComplex = "complex"
)

var (
	ErrUnknownMode    = errors.New("unknown helper mode")
	ErrUnknownCommand = errors.New("unknown helper command")
	ErrCommandFailed  = errors.New("helper command failed")
	ErrNotConfigured  = errors.New("helper not configured")
)

// Supervisor is the part of supervisor.Supervisor the adapters drive.
type Supervisor interface {
	Start(supervisor.HelperSpec) error
	Stop(supervisor.Key)
}

// Helper locates one helper executable.
type Helper struct {
	Path string
	Args []string
}

// Resolve returns the helper at binary, relative to binsDir unless it is
// already absolute.
func Resolve(binsDir, binary string, args ...string) Helper {
	path := binary
	if !filepath.IsAbs(path) {
		path = filepath.Join(binsDir, binary)
	}
	return Helper{Path: path, Args: args}
}

func (h Helper) spec(kind, mode string, extra ...string) supervisor.HelperSpec {
	args := make([]string, 0, len(h.Args)+len(extra))
	args = append(args, h.Args...)
	args = append(args, extra...)
	return supervisor.HelperSpec{
		Key:  supervisor.Key{Kind: kind, Mode: mode},
		Path: h.Path,
		Args: args,
	}
}

// Dir is the helper's working directory, where it drops side files such
// as album artwork.
func (h Helper) Dir() string { return filepath.Dir(h.Path) }

// Set groups the adapters the daemon runs. Nil members are disabled.
type Set struct {
	Keys    *KeyListener
	Media   *MediaInfo
	Taskbar *TaskbarList
	Manager *TaskbarManager
}

// Translate routes a record to the adapter for key.Kind. Records from
// kinds with no adapter are published as events.HelperRecord.
func (s *Set) Translate(key events.HelperKey, raw json.RawMessage) (events.Event, error) {
	switch {
	case key.Kind == KindKeyListener && s.Keys != nil:
		return s.Keys.Translate(key, raw)
	case key.Kind == KindMediaInfo && s.Media != nil:
		return s.Media.Translate(key, raw)
	case key.Kind == KindTaskbarList && s.Taskbar != nil:
		return s.Taskbar.Translate(key, raw)
	case key.Kind == KindTaskbarManager && s.Manager != nil:
		return s.Manager.Translate(key, raw)
	}
	return events.HelperRecord{Source: key, Raw: raw}, nil
}

// StartAll starts every configured helper and joins their errors.
func (s *Set) StartAll() error {
	var errs []error
	if s.Keys != nil {
		errs = append(errs, s.Keys.StartAll())
	}
	if s.Media != nil {
		errs = append(errs, s.Media.Start())
	}
	if s.Taskbar != nil {
		errs = append(errs, s.Taskbar.Start())
	}
	if s.Manager != nil {
		errs = append(errs, s.Manager.Start())
	}
	return errors.Join(errs...)
}

// StopAll stops every configured helper.
func (s *Set) StopAll() {
	if s.Keys != nil {
		s.Keys.StopAll()
	}
	if s.Media != nil {
		s.Media.Stop()
	}
	if s.Taskbar != nil {
		s.Taskbar.Stop()
	}
	if s.Manager != nil {
		s.Manager.Stop()
	}
}

// Close releases background work held by the adapters.
func (s *Set) Close() {
	if s.Taskbar != nil {
		s.Taskbar.Close()
	}
}

func decode(kind string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s record: %w", kind, err)
	}
	return nil
}
