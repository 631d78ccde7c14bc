package native

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/1broseidon/overlayshell/internal/events"
)

// TaskbarManagerConfig configures a TaskbarManager adapter. The offsets
// reserve workspace space at the top and bottom of the primary display.
type TaskbarManagerConfig struct {
	Supervisor   Supervisor
	Helper       Helper
	TopOffset    int
	BottomOffset int
	Logger       *slog.Logger
}

// TaskbarManager runs the helper that hides the system taskbar and reports
// mouse requests to show or hide it.
type TaskbarManager struct {
	sup          Supervisor
	helper       Helper
	topOffset    int
	bottomOffset int
	logger       *slog.Logger

	mu   sync.Mutex
	last events.TaskbarNotice
}

func NewTaskbarManager(cfg TaskbarManagerConfig) *TaskbarManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TaskbarManager{
		sup:          cfg.Supervisor,
		helper:       cfg.Helper,
		topOffset:    cfg.TopOffset,
		bottomOffset: cfg.BottomOffset,
		logger:       cfg.Logger,
	}
}

func (m *TaskbarManager) Kind() string { return KindTaskbarManager }

// Start (re)starts the manager with the configured offsets.
func (m *TaskbarManager) Start() error {
	return m.sup.Start(m.helper.spec(KindTaskbarManager, "",
		"--workspace-top-offset", strconv.Itoa(m.topOffset),
		"--workspace-bottom-offset", strconv.Itoa(m.bottomOffset),
	))
}

// Stop stops the manager. The helper restores the taskbar on exit.
func (m *TaskbarManager) Stop() {
	m.sup.Stop(events.HelperKey{Kind: KindTaskbarManager})
}

// Last returns the most recent notice.
func (m *TaskbarManager) Last() events.TaskbarNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *TaskbarManager) Translate(key events.HelperKey, raw json.RawMessage) (events.Event, error) {
	var notice events.TaskbarNotice
	if err := decode(KindTaskbarManager, raw, &notice); err != nil {
		return nil, err
	}
	if notice.EventType == "" {
		return nil, errors.New("taskbar-manager record without event_type")
	}
	if notice.EventType == events.NoticeGuardianDisabled {
		m.logger.Warn("taskbar guardian disabled", "reason", notice.Reason)
	}

	m.mu.Lock()
	m.last = notice
	m.mu.Unlock()
	return events.TaskbarManager{Source: key, Notice: notice}, nil
}
