// Package anchors owns the managed side of persistent anchor tracking.
//
// Responsibilities: the anchor registry (one record per trackable ID),
// per-frame reconciliation of added/updated/removed reports from the native
// subsystem, predicted-pose bookkeeping, temporal fusion and interpolation
// hand-off, and the two-phase destroy protocol.
// Key types: Anchor, Registry, Manager, Subsystem, Observer.
//
// The native engine is reached only through Subsystem. Telemetry and other
// side observers attach through Observer and never mutate anchor state.
//
// Everything here runs on the caller's frame loop. Nothing is locked; a
// host driving the manager from several goroutines must serialise calls to
// Update, Destroy, CreateFromPose and LocalizeFromPayload itself.
package anchors
