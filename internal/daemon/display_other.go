//go:build !linux

package daemon

import "errors"

func openDisplay() (Display, error) {
	return nil, errors.New("no display backend on this platform; run with --headless")
}
