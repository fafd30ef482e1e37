package trace

import "sync"

// Sink receives events from the compile pipeline.
//
// Record must not panic and cannot fail. Callers assume it may be a no-op.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records event, swallowing panics from a misbehaving sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory Sink. Ordering is fixed when the
// trace is built, so concurrent compiles still yield a canonical trace.
type Recorder struct {
	mu        sync.Mutex
	toolchain string
	events    []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	r.mu.Lock()
	if event.Kind == EventToolchainLocated && event.Detail != "" {
		r.toolchain = event.Detail
	}
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a copy of the events recorded so far, in arrival order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical BuildTrace from the recorded events.
func (r *Recorder) Trace() BuildTrace {
	tr := BuildTrace{Events: r.Snapshot()}
	if r != nil {
		r.mu.Lock()
		tr.Toolchain = r.toolchain
		r.mu.Unlock()
	}
	tr.Canonicalize()
	return tr
}
