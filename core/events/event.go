package events

import (
	"sync"

	"nftstake/core/types"
)

// Event represents a structured state change emitted by the staking engine.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can be rendered into the canonical
// broadcast form consumed by journals and stream subscribers.
type Payload interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (journal, streams, webhooks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout forwards every event to each configured emitter in order. Nil
// entries are skipped.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the event type of every recorded event in emission order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

// Render converts an event into its broadcast form, or nil when the event
// carries no payload.
func Render(evt Event) *types.Event {
	payload, ok := evt.(Payload)
	if !ok {
		if evt == nil {
			return nil
		}
		return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	return payload.Event()
}
