package anchors

import "github.com/banshee-data/anchorsync/internal/pose"

// Subsystem is the native anchor engine as the registry sees it. All of the
// localization and mapping work happens behind it.
type Subsystem interface {
	Start()
	Stop()
	IsRunning() bool

	// IsMock reports a mock provider. Telemetry is suppressed entirely for
	// mock providers.
	IsMock() bool

	TryAddAnchor(p pose.Pose) (Handle, bool)
	TryLocalize(payload []byte) (Handle, bool)
	TryRemoveAnchor(id TrackableID) bool

	// PollChanges returns the reports accumulated since the previous call.
	PollChanges() Changes

	// Configuration is an opaque native configuration, passed through.
	Configuration() any
	SetConfiguration(cfg any)

	// VpsSessionID returns the native VPS session identifier, if one exists.
	VpsSessionID() (string, bool)
}

// Observer receives anchor lifecycle transitions as they are applied. Calls
// happen synchronously on the frame loop, after the registry is updated.
type Observer interface {
	// AnchorAdded fires once when a record is created.
	AnchorAdded(a *Anchor)

	// TrackingChanged fires when an update changes the tracking state.
	// firstTracking is true on the anchor's first transition into Tracking.
	TrackingChanged(a *Anchor, prev TrackingState, firstTracking bool)

	// AnchorRemoved fires after a record is deleted. remaining is the number
	// of records left.
	AnchorRemoved(a *Anchor, remaining int)

	// RegistryEmptied fires once the last record is gone, after the whole
	// batch of removals that emptied it has been applied.
	RegistryEmptied()

	// SubsystemStopped fires after the subsystem stops and every record has
	// been bulk removed.
	SubsystemStopped()
}
