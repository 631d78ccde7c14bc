// Package supervisor runs native helper processes, decodes their JSON-line
// output and publishes it on an events.Router.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/overlayshell/internal/clock"
	"github.com/1broseidon/overlayshell/internal/events"
	"github.com/1broseidon/overlayshell/internal/frame"
)

var (
	// ErrSpawn wraps every failure to start a helper executable.
	ErrSpawn = errors.New("helper spawn failed")
	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("supervisor is shut down")
)

const (
	DefaultFrameBuffer = 64
	DefaultKillGrace   = 3 * time.Second

	stderrMaxLine = 64 << 10
	rawErrorBytes = 256
)

// HelperSpec describes how to launch one helper instance.
type HelperSpec struct {
	Key  Key
	Path string
	Args []string
	// Dir defaults to the directory holding Path.
	Dir string
	// Env is appended to the daemon's environment.
	Env []string
}

// Argv returns the full argument vector: Path, Args, then the mode when set.
func (s HelperSpec) Argv() []string {
	argv := append([]string{s.Path}, s.Args...)
	if s.Key.Mode != "" {
		argv = append(argv, s.Key.Mode)
	}
	return argv
}

// Translator turns one record into a typed event. Returning a nil event
// drops the record; returning an error publishes a DecodeError.
type Translator func(key Key, raw json.RawMessage) (events.Event, error)

// Config configures a Supervisor.
type Config struct {
	Registry *Registry
	Router   *events.Router
	// Translator is optional; without it records are published as
	// events.HelperRecord.
	Translator   Translator
	Logger       *slog.Logger
	Clock        clock.Clock
	FrameBuffer  int
	KillGrace    time.Duration
	MaxLineBytes int
}

// Supervisor starts and stops helpers, at most one per Key.
type Supervisor struct {
	registry     *Registry
	router       *events.Router
	translate    Translator
	logger       *slog.Logger
	clock        clock.Clock
	frameBuffer  int
	killGrace    time.Duration
	maxLineBytes int

	// mu serializes Start, Stop and Shutdown.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type handle struct {
	key       Key
	path      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	cancel    context.CancelFunc

	state    atomic.Value // State
	detached atomic.Bool
	exited   chan struct{}

	killMu    sync.Mutex
	killTimer *clock.Timer
}

// markRunning moves h from starting to running once its output is being
// read. A helper that already exited keeps its final state.
func (h *handle) markRunning() {
	h.state.CompareAndSwap(StateStarting, StateRunning)
}

func (h *handle) info() HelperInfo {
	return HelperInfo{
		Key:       h.key,
		PID:       h.pid,
		State:     h.state.Load().(State),
		Path:      h.path,
		StartedAt: h.startedAt,
	}
}

// New returns a Supervisor. Registry and Router are created when nil.
func New(cfg Config) *Supervisor {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Router == nil {
		cfg.Router = events.NewRouter(cfg.Logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultFrameBuffer
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = frame.DefaultMaxLineBytes
	}
	return &Supervisor{
		registry:     cfg.Registry,
		router:       cfg.Router,
		translate:    cfg.Translator,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		frameBuffer:  cfg.FrameBuffer,
		killGrace:    cfg.KillGrace,
		maxLineBytes: cfg.MaxLineBytes,
	}
}

// Registry returns the registry the supervisor maintains.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Router returns the router helper events are published on.
func (s *Supervisor) Router() *events.Router { return s.router }

// Start launches spec, replacing any instance already running under
// spec.Key. When the executable cannot be started a HelperError event is
// published, nothing is registered, and the error (wrapping ErrSpawn) is
// returned.
func (s *Supervisor) Start(spec HelperSpec) error {
	err := s.start(spec)
	if errors.Is(err, ErrSpawn) {
		s.router.Emit(events.HelperError{Source: spec.Key, Err: err})
	}
	return err
}

func (s *Supervisor) start(spec HelperSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if old := s.registry.remove(spec.Key); old != nil {
		s.detach(old)
	}

	argv := spec.Argv()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(spec.Path)
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Path, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Path, err)
	}
	if err := cmd.Start(); err != nil {
		s.logger.Error("helper spawn failed", "helper", spec.Key, "path", spec.Path, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		key:       spec.Key,
		path:      spec.Path,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: s.clock.Now(),
		cancel:    cancel,
		exited:    make(chan struct{}),
	}
	h.state.Store(StateStarting)
	s.registry.put(h)

	frames := make(chan frame.Frame, s.frameBuffer)
	stderrDone := make(chan struct{})

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		defer close(frames)
		if err := frame.Pump(ctx, stdout, frames, s.maxLineBytes); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("helper stdout read failed", "helper", h.key, "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		defer close(stderrDone)
		s.logStderr(h, stderr)
	}()
	go func() {
		defer s.wg.Done()
		s.consume(h, frames, stderrDone)
	}()

	h.markRunning()
	s.logger.Info("helper started", "helper", h.key, "pid", h.pid, "path", h.path)
	return nil
}

// consume is the only goroutine that publishes events for h, which keeps
// them in stream order.
func (s *Supervisor) consume(h *handle, frames <-chan frame.Frame, stderrDone <-chan struct{}) {
	for f := range frames {
		if h.detached.Load() {
			continue
		}
		s.deliver(h, f)
	}
	<-stderrDone

	waitErr := h.cmd.Wait()
	h.cancel()
	close(h.exited)
	h.stopKillTimer()

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	if code == 0 {
		h.state.Store(StateExited)
	} else {
		h.state.Store(StateFailed)
	}

	// A stopped or replaced instance is already out of the registry and
	// reports nothing.
	if !s.registry.removeIf(h) {
		s.logger.Debug("stopped helper exited", "helper", h.key, "pid", h.pid, "exit_code", code)
		return
	}

	s.logger.Warn("helper exited", "helper", h.key, "pid", h.pid, "exit_code", code, "error", waitErr)
	s.router.Emit(events.HelperExit{Source: h.key, PID: h.pid, ExitCode: code, Err: waitErr})
}

func (s *Supervisor) deliver(h *handle, f frame.Frame) {
	if f.Err != nil {
		s.logger.Debug("helper record malformed", "helper", h.key, "error", f.Err)
		s.router.Emit(events.DecodeError{Source: h.key, Raw: f.Err.Raw, Err: f.Err.Err})
		return
	}
	if s.translate == nil {
		s.router.Emit(events.HelperRecord{Source: h.key, Raw: f.Record})
		return
	}

	ev, err := s.translate(h.key, f.Record)
	if err != nil {
		raw := string(f.Record)
		if len(raw) > rawErrorBytes {
			raw = raw[:rawErrorBytes]
		}
		s.logger.Debug("helper record not translated", "helper", h.key, "error", err)
		s.router.Emit(events.DecodeError{Source: h.key, Raw: raw, Err: fmt.Errorf("%w: %v", frame.ErrMalformed, err)})
		return
	}
	if ev != nil {
		s.router.Emit(ev)
	}
}

func (s *Supervisor) logStderr(h *handle, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), stderrMaxLine)
	for scanner.Scan() {
		s.logger.Debug("helper stderr", "helper", h.key, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("helper stderr unreadable", "helper", h.key, "error", err)
	}
	_, _ = io.Copy(io.Discard, r)
}

// Stop detaches and terminates the helper registered under key. The
// registry entry is removed before Stop returns; the process is not
// waited for. It is a no-op when nothing is registered under key.
func (s *Supervisor) Stop(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.registry.remove(key); h != nil {
		s.detach(h)
	}
}

// detach must be called with s.mu held and h already out of the registry.
func (s *Supervisor) detach(h *handle) {
	h.detached.Store(true)
	h.cancel()

	select {
	case <-h.exited:
		return
	default:
	}

	if err := terminate(h.cmd.Process); err != nil {
		s.logger.Warn("helper terminate failed", "helper", h.key, "pid", h.pid, "error", err)
	}
	s.logger.Info("helper stopped", "helper", h.key, "pid", h.pid)

	h.killMu.Lock()
	h.killTimer = s.clock.AfterFunc(s.killGrace, func() {
		select {
		case <-h.exited:
			return
		default:
		}
		s.logger.Warn("helper ignored terminate, killing", "helper", h.key, "pid", h.pid)
		if err := kill(h.cmd.Process); err != nil {
			s.logger.Warn("helper kill failed", "helper", h.key, "pid", h.pid, "error", err)
		}
	})
	h.killMu.Unlock()
}

func (h *handle) stopKillTimer() {
	h.killMu.Lock()
	defer h.killMu.Unlock()
	h.killTimer.Stop()
}

// StartAll starts every spec and joins their errors.
func (s *Supervisor) StartAll(specs ...HelperSpec) error {
	var errs []error
	for _, spec := range specs {
		if err := s.Start(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every registered helper.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.registry.all() {
		if s.registry.removeIf(h) {
			s.detach(h)
		}
	}
}

// Shutdown stops every helper, refuses further starts, and waits for all
// helper goroutines to finish or ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.StopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
