package anchors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/anchorsync/internal/fusion"
	"github.com/banshee-data/anchorsync/internal/interpolate"
	"github.com/banshee-data/anchorsync/internal/pose"
)

var (
	// ErrSubsystemUnavailable is returned when the native subsystem is absent
	// or not running.
	ErrSubsystemUnavailable = errors.New("native anchor subsystem unavailable")
	// ErrLocalizationFailed is returned when the native localizer rejects a payload.
	ErrLocalizationFailed = errors.New("anchor localization failed")
	// ErrAnchorRejected is returned when the native layer refuses to add an anchor.
	ErrAnchorRejected = errors.New("native subsystem rejected anchor")
	// ErrInterpolatorAttached is returned when an anchor already has an interpolator.
	ErrInterpolatorAttached = errors.New("anchor already has an interpolator")
	// ErrUnknownAnchor is returned for IDs not present in the registry.
	ErrUnknownAnchor = errors.New("unknown anchor")
)

// TrackableID is the opaque, stable identifier the native layer assigns to
// an anchor.
type TrackableID string

// TrackingState is the native tracking quality of an anchor.
type TrackingState int

const (
	TrackingNone     TrackingState = iota // not tracked; pose is meaningless
	TrackingLimited                       // tracked with reduced quality
	TrackingTracking                      // fully tracked
)

var trackingStateNames = map[TrackingState]string{
	TrackingNone:     "none",
	TrackingLimited:  "limited",
	TrackingTracking: "tracking",
}

func (s TrackingState) String() string {
	if n, ok := trackingStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// HasPose reports whether poses reported in this state are usable.
func (s TrackingState) HasPose() bool {
	return s == TrackingTracking || s == TrackingLimited
}

// MarshalText encodes the state by name.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *TrackingState) UnmarshalText(b []byte) error {
	v, err := ParseTrackingState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseTrackingState converts a state name, case-insensitively.
// "lost" is accepted as an alias for none.
func ParseTrackingState(name string) (TrackingState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "lost", "":
		return TrackingNone, nil
	case "limited":
		return TrackingLimited, nil
	case "tracking":
		return TrackingTracking, nil
	}
	return TrackingNone, fmt.Errorf("unknown tracking state %q", name)
}

// Reason qualifies a tracking state.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInitializing
	ReasonRelocalizing
	ReasonInsufficientFeatures
	ReasonExcessiveMotion
	ReasonUnsupported
	ReasonRemoved
)

var reasonNames = map[Reason]string{
	ReasonNone:                 "none",
	ReasonInitializing:         "initializing",
	ReasonRelocalizing:         "relocalizing",
	ReasonInsufficientFeatures: "insufficient_features",
	ReasonExcessiveMotion:      "excessive_motion",
	ReasonUnsupported:          "unsupported",
	ReasonRemoved:              "removed",
}

func (r Reason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason name.
func (r *Reason) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	if name == "" {
		*r = ReasonNone
		return nil
	}
	for k, v := range reasonNames {
		if v == name {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown tracking reason %q", string(b))
}

// Handle is one native report about an anchor.
type Handle struct {
	ID            TrackableID
	TrackingState TrackingState
	Reason        Reason
	Confidence    float64
	Pose          pose.Pose
	TimestampMs   int64
	Payload       []byte // persistent descriptor, when the native layer has one
}

// Changes is the batch of reports returned by one PollChanges call.
type Changes struct {
	Added   []Handle
	Updated []Handle
	Removed []Handle
}

// Empty reports whether the batch carries no reports.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Anchor is the registry's record for one trackable.
//
// The registry owns every Anchor. Callers may read the exported fields but
// should hold on to the ID rather than the pointer across frames.
type Anchor struct {
	ID            TrackableID
	TrackingState TrackingState
	Reason        Reason
	Confidence    float64

	// NativePose is the latest pose the native layer reported, whatever the
	// tracking state.
	NativePose pose.Pose
	// PredictedPose is the last pose taken while Tracking or Limited. It is
	// frozen while tracking is None.
	PredictedPose pose.Pose
	// Transform is the pose currently applied, after fusion and interpolation.
	Transform pose.Pose

	TimestampMs         int64
	DeferredDestruction bool
	Payload             []byte

	pendingAdd    bool // created locally, not yet confirmed in an added report
	nativeRemoved bool // native confirmed removal while destruction was deferred
	everTracked   bool

	fusion *fusion.Window
	interp *interpolate.Interpolator
}

// HasInterpolator reports whether an interpolator drives this anchor.
func (a *Anchor) HasInterpolator() bool { return a.interp != nil }

// Interpolating reports whether an interpolation is in flight.
func (a *Anchor) Interpolating() bool { return a.interp != nil && a.interp.Active() }

// FusionSamples returns the number of buffered fusion samples, 0 when fusion
// is disabled.
func (a *Anchor) FusionSamples() int {
	if a.fusion == nil {
		return 0
	}
	return a.fusion.Len()
}

// Pending reports whether the anchor was created locally and the native
// layer has not yet confirmed the add.
func (a *Anchor) Pending() bool { return a.pendingAdd }

// EverTracked reports whether the anchor has reached Tracking at least once.
func (a *Anchor) EverTracked() bool { return a.everTracked }

// revive clears a confirmed deferred destruction when the native layer adds
// the same ID again.
func (a *Anchor) revive() {
	a.DeferredDestruction = false
	a.nativeRemoved = false
}

// Snapshot returns a copy of the exported fields, safe to keep across frames.
func (a *Anchor) Snapshot() Anchor {
	return Anchor{
		ID:                  a.ID,
		TrackingState:       a.TrackingState,
		Reason:              a.Reason,
		Confidence:          a.Confidence,
		NativePose:          a.NativePose,
		PredictedPose:       a.PredictedPose,
		Transform:           a.Transform,
		TimestampMs:         a.TimestampMs,
		DeferredDestruction: a.DeferredDestruction,
		Payload:             append([]byte(nil), a.Payload...),
	}
}
