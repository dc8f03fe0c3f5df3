package events

import "sync"

// Event represents a structured state change emitted by the wrapper system.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. gateway, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a plain function into an Emitter.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Fanout dispatches every event to each registered emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder retains the most recent events in a bounded ring so read-only
// consumers can replay them. It is safe for concurrent use.
type Recorder struct {
	mu    sync.RWMutex
	cap   int
	items []Event
}

// NewRecorder constructs a recorder bounded to the supplied capacity. A
// non-positive capacity defaults to 256 entries.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{cap: capacity}
}

// Emit implements the Emitter interface, evicting the oldest entry once the
// ring is full.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, evt)
	if len(r.items) > r.cap {
		r.items = append([]Event{}, r.items[len(r.items)-r.cap:]...)
	}
}

// Snapshot returns a copy of the retained events in emission order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event{}, r.items...)
}
