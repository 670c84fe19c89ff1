// Package native provides in-process stand-ins for the native anchor
// subsystem. Simulator is scriptable: tests and the simulator CLI add
// anchors, then push tracking reports that surface on the next poll.
package native

import (
	"github.com/google/uuid"

	"github.com/banshee-data/anchorsync/internal/anchors"
	"github.com/banshee-data/anchorsync/internal/pose"
)

// payloadNamespace seeds deterministic IDs for localized payloads, so the
// same descriptor always resolves to the same trackable.
var payloadNamespace = uuid.MustParse("6f1c2a52-8a43-4d0e-9b7e-3c1d5e2f4a60")

// Simulator implements anchors.Subsystem entirely in memory.
type Simulator struct {
	running bool
	mock    bool

	present map[anchors.TrackableID]anchors.Handle
	queued  anchors.Changes

	sessionID string
	config    any

	// RejectAdds and RejectLocalize make the corresponding Try* calls fail.
	RejectAdds     bool
	RejectLocalize bool
	// NewID generates IDs for created anchors. Defaults to random UUIDs.
	NewID func() string

	Starts int
	Stops  int
}

var _ anchors.Subsystem = (*Simulator)(nil)

// NewSimulator creates a stopped simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		present: make(map[anchors.TrackableID]anchors.Handle),
		NewID:   uuid.NewString,
	}
}

// NewMock creates a simulator that identifies as a mock provider. Managers
// attach no telemetry to it.
func NewMock() *Simulator {
	s := NewSimulator()
	s.mock = true
	return s
}

// Start implements anchors.Subsystem.
func (s *Simulator) Start() {
	s.running = true
	s.Starts++
}

// Stop implements anchors.Subsystem. Native state is discarded.
func (s *Simulator) Stop() {
	s.running = false
	s.Stops++
	s.present = make(map[anchors.TrackableID]anchors.Handle)
	s.queued = anchors.Changes{}
}

// IsRunning implements anchors.Subsystem.
func (s *Simulator) IsRunning() bool { return s.running }

// IsMock implements anchors.Subsystem.
func (s *Simulator) IsMock() bool { return s.mock }

// TryAddAnchor implements anchors.Subsystem. The add is reported on the next poll.
func (s *Simulator) TryAddAnchor(p pose.Pose) (anchors.Handle, bool) {
	if !s.running || s.RejectAdds {
		return anchors.Handle{}, false
	}
	h := anchors.Handle{
		ID:            anchors.TrackableID(s.NewID()),
		TrackingState: anchors.TrackingNone,
		Reason:        anchors.ReasonInitializing,
		Pose:          p,
	}
	s.present[h.ID] = h
	s.queued.Added = append(s.queued.Added, h)
	return h, true
}

// TryLocalize implements anchors.Subsystem.
func (s *Simulator) TryLocalize(payload []byte) (anchors.Handle, bool) {
	if !s.running || s.RejectLocalize || len(payload) == 0 {
		return anchors.Handle{}, false
	}
	id := anchors.TrackableID(uuid.NewSHA1(payloadNamespace, payload).String())
	if h, ok := s.present[id]; ok {
		return h, true
	}
	h := anchors.Handle{
		ID:            id,
		TrackingState: anchors.TrackingNone,
		Reason:        anchors.ReasonInitializing,
		Pose:          pose.Identity(),
		Payload:       append([]byte(nil), payload...),
	}
	s.present[id] = h
	s.queued.Added = append(s.queued.Added, h)
	return h, true
}

// TryRemoveAnchor implements anchors.Subsystem. The removal is reported on
// the next poll. Removing an anchor whose add has not been polled yet
// cancels the add and reports nothing.
func (s *Simulator) TryRemoveAnchor(id anchors.TrackableID) bool {
	if !s.running {
		return false
	}
	h, ok := s.present[id]
	if !ok {
		return false
	}
	delete(s.present, id)
	if s.cancelQueuedAdd(id) {
		return true
	}
	s.queued.Removed = append(s.queued.Removed, h)
	return true
}

func (s *Simulator) cancelQueuedAdd(id anchors.TrackableID) bool {
	found := false
	added := s.queued.Added[:0]
	for _, h := range s.queued.Added {
		if h.ID == id {
			found = true
			continue
		}
		added = append(added, h)
	}
	s.queued.Added = added
	if !found {
		return false
	}
	updated := s.queued.Updated[:0]
	for _, h := range s.queued.Updated {
		if h.ID != id {
			updated = append(updated, h)
		}
	}
	s.queued.Updated = updated
	return true
}

// PollChanges implements anchors.Subsystem.
func (s *Simulator) PollChanges() anchors.Changes {
	out := s.queued
	s.queued = anchors.Changes{}
	return out
}

// Configuration implements anchors.Subsystem.
func (s *Simulator) Configuration() any { return s.config }

// SetConfiguration implements anchors.Subsystem.
func (s *Simulator) SetConfiguration(cfg any) { s.config = cfg }

// VpsSessionID implements anchors.Subsystem.
func (s *Simulator) VpsSessionID() (string, bool) {
	return s.sessionID, s.sessionID != ""
}

// SetSessionID sets the VPS session ID reported from now on. Empty clears it.
func (s *Simulator) SetSessionID(id string) { s.sessionID = id }

// Present reports whether the simulated native layer knows id.
func (s *Simulator) Present(id anchors.TrackableID) bool {
	_, ok := s.present[id]
	return ok
}

// SetTracking queues an update for id. It returns false if id is unknown.
func (s *Simulator) SetTracking(id anchors.TrackableID, state anchors.TrackingState, reason anchors.Reason, confidence float64, p pose.Pose) bool {
	h, ok := s.present[id]
	if !ok {
		return false
	}
	h.TrackingState = state
	h.Reason = reason
	h.Confidence = confidence
	h.Pose = p
	s.present[id] = h
	s.queued.Updated = append(s.queued.Updated, h)
	return true
}

// Drop removes id on the native side without a request, as happens when
// the engine discards an anchor on its own.
func (s *Simulator) Drop(id anchors.TrackableID) bool {
	h, ok := s.present[id]
	if !ok {
		return false
	}
	delete(s.present, id)
	s.queued.Removed = append(s.queued.Removed, h)
	return true
}

// Inject queues an arbitrary added report, e.g. an anchor the native layer
// restored on its own.
func (s *Simulator) Inject(h anchors.Handle) {
	s.present[h.ID] = h
	s.queued.Added = append(s.queued.Added, h)
}
