package native

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/1broseidon/overlayshell/internal/events"
)

// KeyListenerConfig configures a KeyListener.
type KeyListenerConfig struct {
	Supervisor Supervisor
	Helper     Helper
	// Modes defaults to mouse and complex.
	Modes  []string
	Logger *slog.Logger
}

// KeyListener runs one key-listener helper per mode.
type KeyListener struct {
	sup    Supervisor
	helper Helper
	modes  []string
	logger *slog.Logger
}

func NewKeyListener(cfg KeyListenerConfig) *KeyListener {
	if len(cfg.Modes) == 0 {
		cfg.Modes = []string{ModeMouse, ModeComplex}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KeyListener{
		sup:    cfg.Supervisor,
		helper: cfg.Helper,
		modes:  cfg.Modes,
		logger: cfg.Logger,
	}
}

func (k *KeyListener) Kind() string { return KindKeyListener }

// Modes returns the configured modes.
func (k *KeyListener) Modes() []string { return slices.Clone(k.modes) }

// Start (re)starts the listener for mode.
func (k *KeyListener) Start(mode string) error {
	if !slices.Contains(k.modes, mode) {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return k.sup.Start(k.helper.spec(KindKeyListener, mode))
}

// Stop stops the listener for mode, if running.
func (k *KeyListener) Stop(mode string) {
	k.sup.Stop(events.HelperKey{Kind: KindKeyListener, Mode: mode})
}

// StartAll starts a listener for every configured mode.
func (k *KeyListener) StartAll() error {
	var errs []error
	for _, mode := range k.modes {
		errs = append(errs, k.Start(mode))
	}
	return errors.Join(errs...)
}

// StopAll stops every configured mode.
func (k *KeyListener) StopAll() {
	for _, mode := range k.modes {
		k.Stop(mode)
	}
}

// Translate wraps a record as KeyInput. The record must be a JSON object.
func (k *KeyListener) Translate(key events.HelperKey, raw json.RawMessage) (events.Event, error) {
	var fields map[string]json.RawMessage
	if err := decode(KindKeyListener, raw, &fields); err != nil {
		return nil, err
	}
	return events.KeyInput{Source: key, Mode: key.Mode, Data: raw}, nil
}
