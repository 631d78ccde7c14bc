package supervisor

import (
	"sort"
	"sync"
	"time"

	"github.com/1broseidon/overlayshell/internal/events"
)

// Key identifies a helper instance by kind and mode.
type Key = events.HelperKey

// State is the lifecycle state of a helper instance.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateFailed   State = "failed"
)

// HelperInfo is a point-in-time view of a registered helper.
type HelperInfo struct {
	Key       Key       `json:"key"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// Registry holds the running helper instances, at most one per Key.
// Only the supervisor mutates it; everyone else reads snapshots.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*handle)}
}

// Get returns the helper registered under key.
func (r *Registry) Get(key Key) (HelperInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[key]
	if !ok {
		return HelperInfo{}, false
	}
	return h.info(), true
}

// List returns every registered helper, sorted by kind then mode.
func (r *Registry) List() []HelperInfo {
	r.mu.RLock()
	out := make([]HelperInfo, 0, len(r.entries))
	for _, h := range r.entries {
		out = append(out, h.info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind < out[j].Key.Kind
		}
		return out[i].Key.Mode < out[j].Key.Mode
	})
	return out
}

// Len returns the number of registered helpers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) put(h *handle) {
	r.mu.Lock()
	r.entries[h.key] = h
	r.mu.Unlock()
}

func (r *Registry) remove(key Key) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.entries[key]
	delete(r.entries, key)
	return h
}

// removeIf deletes the entry for h.key only while it still belongs to h,
// so an exiting instance never removes its replacement.
func (r *Registry) removeIf(h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[h.key] != h {
		return false
	}
	delete(r.entries, h.key)
	return true
}

func (r *Registry) all() []*handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*handle, 0, len(r.entries))
	for _, h := range r.entries {
		out = append(out, h)
	}
	return out
}
