// Package events is the in-process publish/subscribe router shared by the
// helper supervisor, the native adapters and the surfaces.
package events

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Envelope is one published payload. Origin names the surface or helper
// that produced it, when known.
type Envelope struct {
	Topic   Topic
	Payload any
	Origin  string
}

// Handler receives envelopes for a topic.
type Handler func(Envelope)

type subscription struct {
	handler Handler
	active  atomic.Bool
}

// Router dispatches envelopes synchronously to the subscribers of their
// topic, in subscription order.
//
// Subscribing and unsubscribing are safe from inside a handler. A dispatch
// pass works on the subscriber list as it was when the pass started, so a
// handler added during the pass is not called by it, and a handler removed
// during the pass is not called after its removal.
type Router struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[Topic][]*subscription
}

// NewRouter returns an empty Router. A nil logger uses slog.Default().
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger: logger,
		subs:   make(map[Topic][]*subscription),
	}
}

// Subscribe registers h for topic and returns a function that removes it.
// The returned function may be called any number of times.
func (r *Router) Subscribe(topic Topic, h Handler) func() {
	sub := &subscription{handler: h}
	sub.active.Store(true)

	r.mu.Lock()
	current := r.subs[topic]
	next := make([]*subscription, len(current), len(current)+1)
	copy(next, current)
	r.subs[topic] = append(next, sub)
	r.mu.Unlock()

	return func() { r.unsubscribe(topic, sub) }
}

func (r *Router) unsubscribe(topic Topic, sub *subscription) {
	if !sub.active.CompareAndSwap(true, false) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.subs[topic]
	next := make([]*subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(r.subs, topic)
		return
	}
	r.subs[topic] = next
}

// Publish delivers payload to the subscribers of topic and returns once
// every one of them has returned.
func (r *Router) Publish(topic Topic, payload any) {
	r.PublishEnvelope(Envelope{Topic: topic, Payload: payload})
}

// Emit publishes ev on its own topic.
func (r *Router) Emit(ev Event) {
	env := Envelope{Topic: ev.Topic(), Payload: ev}
	if b, ok := ev.(Broadcast); ok {
		env.Origin = b.Origin
	}
	r.PublishEnvelope(env)
}

// PublishEnvelope delivers env to the subscribers of env.Topic.
func (r *Router) PublishEnvelope(env Envelope) {
	r.mu.Lock()
	snapshot := r.subs[env.Topic]
	r.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		r.call(sub, env)
	}
}

func (r *Router) call(sub *subscription, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked",
				"topic", env.Topic,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.handler(env)
}

// SubscriberCount returns the number of live subscriptions on topic.
func (r *Router) SubscriberCount(topic Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[topic])
}

// On subscribes fn to the topic of event type T. Broadcasts are keyed by
// name; use OnBroadcast for them.
func On[T Event](r *Router, fn func(T)) func() {
	var zero T
	return r.Subscribe(zero.Topic(), func(env Envelope) {
		if ev, ok := env.Payload.(T); ok {
			fn(ev)
		}
	})
}

// OnBroadcast subscribes fn to broadcasts named name.
func OnBroadcast(r *Router, name string, fn func(Broadcast)) func() {
	return r.Subscribe(BroadcastTopic(name), func(env Envelope) {
		if ev, ok := env.Payload.(Broadcast); ok {
			fn(ev)
		}
	})
}
