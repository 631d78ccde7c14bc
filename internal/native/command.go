package native

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultCommandTimeout bounds one-shot helper invocations.
const DefaultCommandTimeout = 10 * time.Second

// Runner runs a helper once and returns its stdout.
type Runner interface {
	Run(ctx context.Context, path string, args ...string) ([]byte, error)
}

// ExecRunner runs helpers as child processes in their own directory.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = filepath.Dir(path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// CommandResult is the single JSON object a helper prints for a one-shot
// command. Fields beyond Success and Error depend on the command.
type CommandResult struct {
	Success          bool   `json:"success"`
	Command          string `json:"command,omitempty"`
	Error            string `json:"error,omitempty"`
	Message          string `json:"message,omitempty"`
	IconBase64       string `json:"icon_base64,omitempty"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
}

// runCommand runs a one-shot command and fails with ErrCommandFailed when
// the helper reports success=false.
func runCommand(ctx context.Context, runner Runner, helper Helper, args ...string) (CommandResult, error) {
	if helper.Path == "" {
		return CommandResult{}, ErrNotConfigured
	}
	out, err := runner.Run(ctx, helper.Path, args...)
	if err != nil {
		return CommandResult{}, err
	}

	// Helpers may log before the result; the result is the last line.
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = bytes.TrimSpace(out[i+1:])
	}

	var res CommandResult
	if err := json.Unmarshal(out, &res); err != nil {
		return CommandResult{}, fmt.Errorf("%w: %s: unreadable result: %v", ErrCommandFailed, args[0], err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "no detail"
		}
		return res, fmt.Errorf("%w: %s: %s", ErrCommandFailed, args[0], msg)
	}
	return res, nil
}
