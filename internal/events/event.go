package events

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of payloads the supervisor and surfaces publish.
// Variants are sealed by an unexported method; Broadcast is the only one
// whose content is open.
type Event interface {
	Topic() Topic
	isEvent()
}

// KeyInput is one record from a key-listener helper.
type KeyInput struct {
	Source HelperKey       `json:"source"`
	Mode   string          `json:"mode"`
	Data   json.RawMessage `json:"data"`
}

// MediaSession carries the current media session as reported by the
// media-info helper. Artwork is a base64 PNG and is only set when the
// track changed and the helper reported artwork.
type MediaSession struct {
	Source         HelperKey  `json:"source"`
	State          MediaState `json:"state"`
	Artwork        string     `json:"artwork,omitempty"`
	ArtworkChanged bool       `json:"artwork_changed"`
}

// TaskbarSnapshot is one full window inventory from the taskbar list helper.
type TaskbarSnapshot struct {
	Source   HelperKey        `json:"source"`
	Snapshot TaskbarInventory `json:"snapshot"`
}

// TaskbarManager is one notice from the taskbar-manager helper.
type TaskbarManager struct {
	Source HelperKey     `json:"source"`
	Notice TaskbarNotice `json:"notice"`
}

// HelperRecord is a record from a helper kind that has no translator.
type HelperRecord struct {
	Source HelperKey       `json:"source"`
	Raw    json.RawMessage `json:"raw"`
}

// HelperError reports a helper that could not be started.
type HelperError struct {
	Source HelperKey
	Err    error
}

// HelperExit reports a helper that exited without being stopped.
type HelperExit struct {
	Source   HelperKey
	PID      int
	ExitCode int
	Err      error
}

// DecodeError reports a helper record that could not be decoded or
// translated. Raw is the offending line, possibly truncated.
type DecodeError struct {
	Source HelperKey
	Raw    string
	Err    error
}

// Broadcast is a named message delivered to every surface.
type Broadcast struct {
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

func (KeyInput) Topic() Topic        { return TopicKeyInput }
func (MediaSession) Topic() Topic    { return TopicMediaSession }
func (TaskbarSnapshot) Topic() Topic { return TopicTaskbarSnapshot }
func (TaskbarManager) Topic() Topic  { return TopicTaskbarManager }
func (HelperRecord) Topic() Topic    { return TopicHelperRecord }
func (HelperError) Topic() Topic     { return TopicHelperError }
func (HelperExit) Topic() Topic      { return TopicHelperExit }
func (DecodeError) Topic() Topic     { return TopicHelperDecodeError }
func (b Broadcast) Topic() Topic     { return BroadcastTopic(b.Name) }

func (KeyInput) isEvent()        {}
func (MediaSession) isEvent()    {}
func (TaskbarSnapshot) isEvent() {}
func (TaskbarManager) isEvent()  {}
func (HelperRecord) isEvent()    {}
func (HelperError) isEvent()     {}
func (HelperExit) isEvent()      {}
func (DecodeError) isEvent()     {}
func (Broadcast) isEvent()       {}

func (e HelperError) Error() string {
	return fmt.Sprintf("helper %s: %v", e.Source, e.Err)
}

func (e HelperError) Unwrap() error { return e.Err }

func (e DecodeError) Error() string {
	return fmt.Sprintf("helper %s: %v", e.Source, e.Err)
}

func (e DecodeError) Unwrap() error { return e.Err }

func (e HelperError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Source HelperKey `json:"source"`
		Error  string    `json:"error"`
	}{e.Source, errString(e.Err)})
}

func (e HelperExit) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Source   HelperKey `json:"source"`
		PID      int       `json:"pid"`
		ExitCode int       `json:"exit_code"`
		Error    string    `json:"error,omitempty"`
	}{e.Source, e.PID, e.ExitCode, errString(e.Err)})
}

func (e DecodeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Source HelperKey `json:"source"`
		Raw    string    `json:"raw"`
		Error  string    `json:"error"`
	}{e.Source, e.Raw, errString(e.Err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Visitor handles every Event variant. Adding a variant breaks every
// Visitor implementation at compile time.
type Visitor interface {
	KeyInput(KeyInput)
	MediaSession(MediaSession)
	TaskbarSnapshot(TaskbarSnapshot)
	TaskbarManager(TaskbarManager)
	HelperRecord(HelperRecord)
	HelperError(HelperError)
	HelperExit(HelperExit)
	DecodeError(DecodeError)
	Broadcast(Broadcast)
}

// Dispatch calls the Visitor method matching ev's variant.
func Dispatch(ev Event, v Visitor) {
	switch e := ev.(type) {
	case KeyInput:
		v.KeyInput(e)
	case MediaSession:
		v.MediaSession(e)
	case TaskbarSnapshot:
		v.TaskbarSnapshot(e)
	case TaskbarManager:
		v.TaskbarManager(e)
	case HelperRecord:
		v.HelperRecord(e)
	case HelperError:
		v.HelperError(e)
	case HelperExit:
		v.HelperExit(e)
	case DecodeError:
		v.DecodeError(e)
	case Broadcast:
		v.Broadcast(e)
	}
}
