package telemetry

import (
	"github.com/google/uuid"

	"github.com/banshee-data/anchorsync/internal/anchors"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

// SessionSource reports the native VPS session ID. *anchors.Manager
// satisfies it.
type SessionSource interface {
	SessionID() (string, bool)
}

// Sidecar observes the anchor registry and emits telemetry events.
//
// A session starts when an anchor is added while none is active and ends
// when the registry empties or the subsystem stops. If the native session ID
// changes while a session is open the stale session is ended (Forced) before
// the new one starts.
type Sidecar struct {
	sink     Sink
	sessions SessionSource
	clock    timeutil.Clock
	newID    func() string

	sessionID           string
	active              bool
	initialLocalization bool
	activeAnchors       int
}

var _ anchors.Observer = (*Sidecar)(nil)

// NewSidecar creates a sidecar writing to sink. sessions may be nil, in
// which case every session gets a generated ID.
func NewSidecar(sink Sink, sessions SessionSource, clock timeutil.Clock) *Sidecar {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sidecar{
		sink:     sink,
		sessions: sessions,
		clock:    clock,
		newID:    uuid.NewString,
	}
}

// SessionID returns the ID of the open session.
func (s *Sidecar) SessionID() (string, bool) {
	return s.sessionID, s.active
}

// InitialLocalization reports whether the open session has localized.
func (s *Sidecar) InitialLocalization() bool {
	return s.initialLocalization
}

// AnchorAdded implements anchors.Observer.
func (s *Sidecar) AnchorAdded(a *anchors.Anchor) {
	native, ok := s.nativeSessionID()
	if s.active && ok && native != s.sessionID {
		monitoring.Logf("telemetry: session %s replaced by %s before it ended", s.sessionID, native)
		s.endSession(true)
	}
	s.activeAnchors++
	if !s.active {
		if !ok {
			native = s.newID()
		}
		s.startSession(native)
	}
}

// TrackingChanged implements anchors.Observer.
func (s *Sidecar) TrackingChanged(a *anchors.Anchor, prev anchors.TrackingState, firstTracking bool) {
	next := a.TrackingState
	switch {
	case firstTracking:
		ev := s.anchorEvent(KindLocalizationSuccess, a)
		ev.InitialLocalization = !s.initialLocalization
		s.initialLocalization = true
		s.emit(ev)
	case prev == anchors.TrackingTracking && next == anchors.TrackingNone:
		s.emit(s.anchorEvent(KindTrackingLost, a))
	case prev == anchors.TrackingNone && next == anchors.TrackingTracking:
		s.emit(s.anchorEvent(KindTrackingRegained, a))
	}
}

// AnchorRemoved implements anchors.Observer.
func (s *Sidecar) AnchorRemoved(a *anchors.Anchor, remaining int) {
	s.activeAnchors = remaining
	s.emit(s.anchorEvent(KindAnchorRemoved, a))
}

// RegistryEmptied implements anchors.Observer.
func (s *Sidecar) RegistryEmptied() {
	s.activeAnchors = 0
	if s.active {
		s.endSession(false)
	}
}

// SubsystemStopped implements anchors.Observer.
func (s *Sidecar) SubsystemStopped() {
	s.activeAnchors = 0
	if s.active {
		s.endSession(false)
	}
}

func (s *Sidecar) nativeSessionID() (string, bool) {
	if s.sessions == nil {
		return "", false
	}
	id, ok := s.sessions.SessionID()
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *Sidecar) startSession(id string) {
	s.sessionID = id
	s.active = true
	s.initialLocalization = false
	s.emit(Event{Kind: KindSessionStarted, ActiveAnchors: s.activeAnchors})
}

func (s *Sidecar) endSession(forced bool) {
	s.emit(Event{Kind: KindSessionEnded, ActiveAnchors: s.activeAnchors, Forced: forced})
	s.active = false
	s.initialLocalization = false
}

func (s *Sidecar) anchorEvent(kind Kind, a *anchors.Anchor) Event {
	return Event{
		Kind:          kind,
		AnchorID:      string(a.ID),
		TrackingState: a.TrackingState.String(),
		Reason:        a.Reason.String(),
		ActiveAnchors: s.activeAnchors,
	}
}

func (s *Sidecar) emit(ev Event) {
	ev.ID = s.newID()
	ev.SessionID = s.sessionID
	ev.TimestampMs = timeutil.NowMillis(s.clock)
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ev); err != nil {
		monitoring.Errorf("telemetry: emit %s: %v", ev.Kind, err)
	}
}
