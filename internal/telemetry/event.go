// Package telemetry turns anchor lifecycle transitions into session and
// localization events and delivers them to one or more sinks.
package telemetry

// Kind names a telemetry event.
type Kind string

const (
	KindSessionStarted      Kind = "session_started"
	KindLocalizationSuccess Kind = "localization_success"
	KindTrackingLost        Kind = "tracking_lost"
	KindTrackingRegained    Kind = "tracking_regained"
	KindAnchorRemoved       Kind = "anchor_removed"
	KindSessionEnded        Kind = "session_ended"
)

// Kinds lists every event kind in lifecycle order.
var Kinds = []Kind{
	KindSessionStarted,
	KindLocalizationSuccess,
	KindTrackingLost,
	KindTrackingRegained,
	KindAnchorRemoved,
	KindSessionEnded,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one telemetry record. Anchor fields are empty for session events.
type Event struct {
	ID            string `json:"id"`
	Kind          Kind   `json:"kind"`
	SessionID     string `json:"session_id"`
	AnchorID      string `json:"anchor_id,omitempty"`
	TrackingState string `json:"tracking_state,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ActiveAnchors int    `json:"active_anchors"`
	// InitialLocalization is set on the first localization success of a
	// session.
	InitialLocalization bool `json:"initial_localization,omitempty"`
	// Forced marks a session end caused by a new session ID appearing
	// before the previous session ended.
	Forced      bool  `json:"forced,omitempty"`
	TimestampMs int64 `json:"timestamp_ms"`
}
