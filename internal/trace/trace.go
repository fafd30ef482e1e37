// Package trace records what a build session did, in a form that is
// byte-for-byte stable across runs.
package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// BuildTrace is the canonical record of a build session.
//
// It holds logical decisions only: no timestamps, durations, session IDs or
// other values that vary between identical runs. Two sessions that made the
// same decisions produce the same canonical bytes and the same Hash.
type BuildTrace struct {
	// Toolchain identifies the compiler (its version string).
	Toolchain string
	Events    []Event
}

// EventKind is the stable discriminator for Event.
type EventKind string

const (
	EventToolchainLocated   EventKind = "ToolchainLocated"
	EventSourcesResolved    EventKind = "SourcesResolved"
	EventCacheHit           EventKind = "CacheHit"
	EventExecuted           EventKind = "Executed"
	EventFailed             EventKind = "Failed"
	EventArtifactRegistered EventKind = "ArtifactRegistered"
)

// Event is one decision taken for one output path.
type Event struct {
	Kind EventKind

	// Output is the artifact path the event concerns. Empty only for
	// EventToolchainLocated.
	Output string

	// Detail is a short stable qualifier: the toolchain path, an error kind,
	// an exit status.
	Detail string

	// Sources are the resolved inputs, in argument order.
	Sources []string
}

// Validate checks the invariants canonical encoding relies on.
func (t *BuildTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Kind != EventToolchainLocated && e.Output == "" {
			return fmt.Errorf("events[%d].output is required for kind %q", i, e.Kind)
		}
		for j, s := range e.Sources {
			if s == "" {
				return fmt.Errorf("events[%d].sources[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize sorts events by output path, then pipeline stage, then detail.
// Source order inside an event is significant and preserved.
func (t *BuildTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Sources) == 0 {
			t.Events[i].Sources = nil
		}
	}

	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Output != b.Output {
			return a.Output < b.Output
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Detail != b.Detail {
			return a.Detail < b.Detail
		}
		return compareStringSlices(a.Sources, b.Sources)
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventToolchainLocated:
		return 10
	case EventSourcesResolved:
		return 20
	case EventCacheHit:
		return 30
	case EventExecuted:
		return 40
	case EventFailed:
		return 50
	case EventArtifactRegistered:
		return 60
	default:
		return 1000
	}
}

func compareStringSlices(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// CanonicalJSON returns the canonical encoding without modifying t.
func (t BuildTrace) CanonicalJSON() ([]byte, error) {
	c := BuildTrace{Toolchain: t.Toolchain, Events: make([]Event, len(t.Events))}
	for i, e := range t.Events {
		e.Sources = append([]string(nil), e.Sources...)
		c.Events[i] = e
	}
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the sha256 of the canonical encoding.
func (t BuildTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// MarshalJSON fixes field order and omits absent optional fields.
func (t BuildTrace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"toolchain":`)
	tc, _ := json.Marshal(t.Toolchain)
	buf.Write(tc)

	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	if e.Output != "" {
		buf.WriteString(`,"output":`)
		ob, _ := json.Marshal(e.Output)
		buf.Write(ob)
	}
	if e.Detail != "" {
		buf.WriteString(`,"detail":`)
		db, _ := json.Marshal(e.Detail)
		buf.Write(db)
	}
	if len(e.Sources) > 0 {
		buf.WriteString(`,"sources":`)
		sb, err := json.Marshal(e.Sources)
		if err != nil {
			return nil, err
		}
		buf.Write(sb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
