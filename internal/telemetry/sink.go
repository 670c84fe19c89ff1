package telemetry

import (
	"errors"
	"sync"

	"github.com/banshee-data/anchorsync/internal/monitoring"
)

// Sink receives telemetry events. Emit is called synchronously from the
// frame loop.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }

// LogSink writes one line per event through the monitoring logger.
type LogSink struct{}

func (LogSink) Emit(ev Event) error {
	if ev.AnchorID == "" {
		monitoring.Logf("telemetry: %s session=%s active=%d forced=%t", ev.Kind, ev.SessionID, ev.ActiveAnchors, ev.Forced)
		return nil
	}
	monitoring.Logf("telemetry: %s session=%s anchor=%s state=%s reason=%s active=%d",
		ev.Kind, ev.SessionID, ev.AnchorID, ev.TrackingState, ev.Reason, ev.ActiveAnchors)
	return nil
}

// MemorySink keeps every event in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Emit(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (m *MemorySink) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Kind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

// Count returns how many events of kind k were recorded.
func (m *MemorySink) Count(k Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// MultiSink fans an event out to every sink. A failing sink does not stop
// delivery to the rest; the errors are joined.
type MultiSink []Sink

func (ms MultiSink) Emit(ev Event) error {
	var errs []error
	for _, s := range ms {
		if s == nil {
			continue
		}
		if err := s.Emit(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
