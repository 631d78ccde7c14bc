package native

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/1broseidon/overlayshell/internal/events"
)

// ArtworkFile is written by the media helper next to its executable
// whenever the current track has artwork.
const ArtworkFile = "current_album_artwork.png"

// MediaCommand is a one-shot media transport command.
type MediaCommand string

const (
	MediaSkipTrack       MediaCommand = "skip-track"
	MediaPreviousTrack   MediaCommand = "previous-track"
	MediaTogglePlayPause MediaCommand = "toggle-play-pause"
	MediaPause           MediaCommand = "pause"
	MediaResume          MediaCommand = "resume"
)

// MediaCommands lists every supported MediaCommand.
var MediaCommands = []MediaCommand{
	MediaSkipTrack, MediaPreviousTrack, MediaTogglePlayPause, MediaPause, MediaResume,
}

// ParseMediaCommand validates s as a MediaCommand.
func ParseMediaCommand(s string) (MediaCommand, error) {
	for _, c := range MediaCommands {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: media %q", ErrUnknownCommand, s)
}

// MediaInfoConfig configures a MediaInfo adapter.
type MediaInfoConfig struct {
	Supervisor Supervisor
	Helper     Helper
	Runner     Runner
	Logger     *slog.Logger
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

// MediaInfo runs the media-info helper and tracks the current session.
type MediaInfo struct {
	sup      Supervisor
	helper   Helper
	runner   Runner
	logger   *slog.Logger
	readFile func(string) ([]byte, error)

	mu      sync.Mutex
	seen    bool
	state   events.MediaState
	artwork string
}

func NewMediaInfo(cfg MediaInfoConfig) *MediaInfo {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	return &MediaInfo{
		sup:      cfg.Supervisor,
		helper:   cfg.Helper,
		runner:   cfg.Runner,
		logger:   cfg.Logger,
		readFile: cfg.ReadFile,
	}
}

func (m *MediaInfo) Kind() string { return KindMediaInfo }

// Start (re)starts the media monitor.
func (m *MediaInfo) Start() error {
	return m.sup.Start(m.helper.spec(KindMediaInfo, ""))
}

// Stop stops the media monitor.
func (m *MediaInfo) Stop() {
	m.sup.Stop(events.HelperKey{Kind: KindMediaInfo})
}

// Current returns the last reported session and its artwork.
func (m *MediaInfo) Current() (events.MediaState, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.artwork, m.seen
}

// Command runs a one-shot transport command against the current session.
func (m *MediaInfo) Command(ctx context.Context, cmd MediaCommand) (CommandResult, error) {
	if _, err := ParseMediaCommand(string(cmd)); err != nil {
		return CommandResult{}, err
	}
	return runCommand(ctx, m.runner, m.helper, string(cmd))
}

// Translate decodes a media record. Artwork is reloaded only when the
// track identity changes.
func (m *MediaInfo) Translate(key events.HelperKey, raw json.RawMessage) (events.Event, error) {
	var state events.MediaState
	if err := decode(KindMediaInfo, raw, &state); err != nil {
		return nil, err
	}
	if state.PlaybackStatus == "" {
		state.PlaybackStatus = events.PlaybackUnknown
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := !m.seen || m.state.TrackKey() != state.TrackKey()
	m.seen = true
	m.state = state
	if changed {
		m.artwork = m.loadArtwork(state)
	}
	return events.MediaSession{
		Source:         key,
		State:          state,
		Artwork:        m.artwork,
		ArtworkChanged: changed,
	}, nil
}

func (m *MediaInfo) loadArtwork(state events.MediaState) string {
	if !state.HasArtwork {
		return ""
	}
	data, err := m.readFile(filepath.Join(m.helper.Dir(), ArtworkFile))
	if err != nil {
		m.logger.Warn("album artwork unreadable", "error", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
