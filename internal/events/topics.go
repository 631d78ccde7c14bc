package events

import "strings"

// Topic names a stream of envelopes on a Router.
type Topic string

const (
	TopicKeyInput        Topic = "native.key-input"
	TopicMediaSession    Topic = "native.media-session"
	TopicTaskbarSnapshot Topic = "native.taskbar-snapshot"
	TopicTaskbarManager  Topic = "native.taskbar-manager"

	TopicHelperRecord      Topic = "helper.record"
	TopicHelperError       Topic = "helper.error"
	TopicHelperExit        Topic = "helper.exit"
	TopicHelperDecodeError Topic = "helper.decode-error"
)

// BroadcastPrefix namespaces topics that carry cross-surface broadcasts.
const BroadcastPrefix = "broadcast:"

// NativeTopics lists the topics the host forwards to every surface.
var NativeTopics = []Topic{
	TopicKeyInput,
	TopicMediaSession,
	TopicTaskbarSnapshot,
	TopicTaskbarManager,
}

// BroadcastTopic returns the local topic a broadcast named name is
// republished under.
func BroadcastTopic(name string) Topic {
	return Topic(BroadcastPrefix + name)
}

func (t Topic) String() string { return string(t) }

// HelperKey identifies one supervised helper instance.
type HelperKey struct {
	Kind string `json:"kind"`
	Mode string `json:"mode,omitempty"`
}

func (k HelperKey) String() string {
	if k.Mode == "" {
		return k.Kind
	}
	return k.Kind + ":" + k.Mode
}

// ParseHelperKey is the inverse of HelperKey.String.
func ParseHelperKey(s string) HelperKey {
	kind, mode, _ := strings.Cut(s, ":")
	return HelperKey{Kind: kind, Mode: mode}
}
