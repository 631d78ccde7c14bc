//go:build linux

package daemon

import "github.com/1broseidon/overlayshell/internal/platform"

func openDisplay() (Display, error) {
	return platform.NewLinuxBackendFromDisplay()
}
