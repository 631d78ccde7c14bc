package broadcast

import (
	"log/slog"
	"sort"
	"sync"
)

// Hub is the host side of the bus: one Sink per surface.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, sinks: make(map[string]Sink)}
}

// Attach registers sink for surface id, replacing any previous sink. The
// returned function detaches it, unless it has been replaced since.
func (h *Hub) Attach(id string, sink Sink) (detach func()) {
	h.mu.Lock()
	h.sinks[id] = sink
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.sinks[id] == sink {
			delete(h.sinks, id)
		}
	}
}

// Detach removes the sink for id and evicts it when it is an Evicter.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	sink := h.sinks[id]
	delete(h.sinks, id)
	h.mu.Unlock()

	if e, ok := sink.(Evicter); ok {
		e.Evict()
	}
}

// Surfaces returns the attached surface ids, sorted.
func (h *Hub) Surfaces() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sinks))
	for id := range h.sinks {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Broadcast offers msg to every attached surface and returns how many
// accepted it. Surfaces that are gone or backed up are skipped.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	targets := make(map[string]Sink, len(h.sinks))
	for id, sink := range h.sinks {
		targets[id] = sink
	}
	h.mu.RUnlock()

	delivered := 0
	for id, sink := range targets {
		if err := sink.Deliver(msg); err != nil {
			h.logger.Debug("broadcast skipped surface", "surface", id, "name", msg.Name, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
