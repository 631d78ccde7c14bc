package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Launcher starts the renderer for a new overlay. The returned stop func
// is called when the surface is destroyed.
type Launcher interface {
	Launch(info Info) (stop func(), err error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(info Info) (func(), error)

func (f LauncherFunc) Launch(info Info) (func(), error) { return f(info) }

// CommandLauncher runs a renderer command per overlay. Each argument may
// contain the placeholders {id}, {path}, {screen}, {x}, {y}, {width},
// {height} and {bridge}.
type CommandLauncher struct {
	Command      []string
	BridgeSocket string
	Env          []string
	Logger       *slog.Logger
	// StopGrace is how long a renderer gets between SIGTERM and SIGKILL.
	StopGrace time.Duration
}

// Expand returns the argument vector for info.
func (l *CommandLauncher) Expand(info Info) []string {
	r := strings.NewReplacer(
		"{id}", info.ID,
		"{path}", info.Path,
		"{screen}", strconv.Itoa(info.ScreenID),
		"{x}", strconv.Itoa(info.Bounds.X),
		"{y}", strconv.Itoa(info.Bounds.Y),
		"{width}", strconv.Itoa(info.Bounds.Width),
		"{height}", strconv.Itoa(info.Bounds.Height),
		"{bridge}", l.BridgeSocket,
	)
	argv := make([]string, len(l.Command))
	for i, arg := range l.Command {
		argv[i] = r.Replace(arg)
	}
	return argv
}

// Launch implements Launcher.
func (l *CommandLauncher) Launch(info Info) (func(), error) {
	if len(l.Command) == 0 {
		return nil, errors.New("renderer command is empty")
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := l.StopGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	argv := l.Expand(info)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env, "OVERLAYSHELL_SURFACE="+info.ID, "OVERLAYSHELL_BRIDGE="+l.BridgeSocket)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start renderer %s: %w", argv[0], err)
	}
	logger.Info("renderer started", "surface", info.ID, "pid", cmd.Process.Pid)

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		close(exited)
		logger.Info("renderer exited", "surface", info.ID, "pid", cmd.Process.Pid, "error", err)
	}()

	return func() {
		select {
		case <-exited:
			return
		default:
		}
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-exited:
		case <-time.After(grace):
			_ = cmd.Process.Kill()
		}
	}, nil
}
