package surface

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/1broseidon/overlayshell/internal/runtimepath"
)

// ErrUnknownPath is returned by GetPath for a name it does not know.
var ErrUnknownPath = errors.New("unknown path name")

// Path names accepted by GetPath.
const (
	PathApp     = "appPath"
	PathExe     = "exe"
	PathHome    = "home"
	PathConfig  = "config"
	PathRuntime = "runtime"
	PathBins    = "bins"
	PathTemp    = "temp"
	PathLogs    = "logs"
)

// Paths are the well-known directories surfaces may ask the host for.
type Paths struct {
	App     string `json:"appPath"`
	Exe     string `json:"exe"`
	Home    string `json:"home"`
	Config  string `json:"config"`
	Runtime string `json:"runtime"`
	Bins    string `json:"bins"`
	Temp    string `json:"temp"`
	Logs    string `json:"logs"`
}

// DefaultPaths fills Paths from the environment. appPath defaults to the
// directory of the running executable; bins defaults to <appPath>/bins.
func DefaultPaths(appPath, binsDir string) (Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return Paths{}, fmt.Errorf("locate executable: %w", err)
	}
	if appPath == "" {
		appPath = filepath.Dir(exe)
	}
	if binsDir == "" {
		binsDir = filepath.Join(appPath, "bins")
	}

	p := Paths{
		App:  appPath,
		Exe:  exe,
		Bins: binsDir,
		Temp: os.TempDir(),
	}
	if home, err := os.UserHomeDir(); err == nil {
		p.Home = home
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		p.Config = filepath.Join(cfg, "overlayshell")
	}
	if rt, err := runtimepath.Dir(); err == nil {
		p.Runtime = rt
	}
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		p.Logs = filepath.Join(state, "overlayshell")
	} else if p.Home != "" {
		p.Logs = filepath.Join(p.Home, ".local", "state", "overlayshell")
	}
	return p, nil
}

// Get returns the path registered under name.
func (p Paths) Get(name string) (string, error) {
	var v string
	switch name {
	case PathApp:
		v = p.App
	case PathExe:
		v = p.Exe
	case PathHome:
		v = p.Home
	case PathConfig:
		v = p.Config
	case PathRuntime:
		v = p.Runtime
	case PathBins:
		v = p.Bins
	case PathTemp:
		v = p.Temp
	case PathLogs:
		v = p.Logs
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPath, name)
	}
	return v, nil
}
