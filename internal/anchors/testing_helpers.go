package anchors

// SetTrackingState forces the tracking fields of a record without running
// the state machine or notifying observers. Mock providers and tests use it
// to stage a record, e.g. one that has already localized.
//
// NOTE: This function is intended for testing purposes only and should
// not be used in production code. Tracking state normally changes only
// through Registry.ProcessFrame.
func (a *Anchor) SetTrackingState(state TrackingState, reason Reason, confidence float64, everTracked bool) {
	a.TrackingState = state
	a.Reason = reason
	a.Confidence = confidence
	a.everTracked = everTracked
}
