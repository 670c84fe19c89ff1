package anchors

import (
	"sort"

	"github.com/banshee-data/anchorsync/internal/fusion"
	"github.com/banshee-data/anchorsync/internal/interpolate"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

// RegistryConfig controls how updated poses are turned into applied poses.
type RegistryConfig struct {
	FusionEnabled        bool
	FusionWindowSize     int
	InterpolationEnabled bool // attach an interpolator to every new anchor
	Interpolation        interpolate.Config
}

// Registry maps trackable IDs to anchor records and applies the per-frame
// reconciliation rules.
type Registry struct {
	anchors   map[TrackableID]*Anchor
	config    RegistryConfig
	clock     timeutil.Clock
	observers []Observer
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig, clock timeutil.Clock) *Registry {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Registry{
		anchors: make(map[TrackableID]*Anchor),
		config:  config,
		clock:   clock,
	}
}

// AddObserver registers o for lifecycle transitions.
func (r *Registry) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// ClearObservers detaches every observer.
func (r *Registry) ClearObservers() {
	r.observers = nil
}

// Get returns the record for id, or nil.
func (r *Registry) Get(id TrackableID) *Anchor {
	return r.anchors[id]
}

// Len returns the number of records, including ones awaiting deferred
// destruction.
func (r *Registry) Len() int {
	return len(r.anchors)
}

// All returns every record ordered by ID.
func (r *Registry) All() []*Anchor {
	out := make([]*Anchor, 0, len(r.anchors))
	for _, id := range r.sortedIDs() {
		out = append(out, r.anchors[id])
	}
	return out
}

// ProcessFrame applies one batch of native reports: adds first, then
// updates, then removals. End of session is evaluated once, after every
// removal in the batch has been applied.
func (r *Registry) ProcessFrame(changes Changes) {
	for _, h := range changes.Added {
		a := r.confirmAdd(h)
		if h.TrackingState != TrackingNone {
			// restored anchors can arrive already tracked
			r.applyUpdate(a, h)
		}
	}

	for _, h := range changes.Updated {
		a := r.anchors[h.ID]
		if a == nil {
			monitoring.Logf("anchors: update for unknown anchor %s, registering it", h.ID)
			a = r.confirmAdd(h)
		}
		r.applyUpdate(a, h)
	}

	removedAny := false
	for _, h := range changes.Removed {
		a := r.anchors[h.ID]
		if a == nil {
			continue
		}
		if a.DeferredDestruction {
			// Keep the record until the confirming Destroy call.
			a.nativeRemoved = true
			continue
		}
		r.remove(a)
		removedAny = true
	}
	if removedAny && len(r.anchors) == 0 {
		r.notifyEmptied()
	}
}

// Tick advances every interpolator by dt seconds and writes the result to
// the anchor's applied transform.
func (r *Registry) Tick(dt float64) {
	for _, a := range r.anchors {
		if a.interp != nil {
			a.Transform = a.interp.Tick(dt)
		}
	}
}

// confirmAdd handles an added report. Known IDs are idempotent: a pending
// local add becomes confirmed and the existing record is returned.
func (r *Registry) confirmAdd(h Handle) *Anchor {
	if a := r.anchors[h.ID]; a != nil {
		if a.nativeRemoved {
			a.revive()
		}
		a.pendingAdd = false
		return a
	}
	a := r.newAnchor(h.ID, h.Pose)
	a.NativePose = h.Pose
	a.TimestampMs = r.timestamp(h.TimestampMs)
	if len(h.Payload) > 0 {
		a.Payload = append([]byte(nil), h.Payload...)
	}
	r.insert(a)
	return a
}

// registerPending records an anchor created or localized locally whose add
// the native layer has not reported yet.
func (r *Registry) registerPending(h Handle, initial pose.Pose, payload []byte) *Anchor {
	if a := r.anchors[h.ID]; a != nil {
		if a.nativeRemoved {
			// native already dropped it; this is a fresh add of the same ID
			a.revive()
			a.pendingAdd = true
		}
		return a
	}
	a := r.newAnchor(h.ID, initial)
	a.NativePose = initial
	a.pendingAdd = true
	a.TimestampMs = r.timestamp(h.TimestampMs)
	if len(payload) > 0 {
		a.Payload = append([]byte(nil), payload...)
	}
	r.insert(a)
	return a
}

func (r *Registry) newAnchor(id TrackableID, transform pose.Pose) *Anchor {
	a := &Anchor{
		ID:            id,
		TrackingState: TrackingNone,
		Reason:        ReasonInitializing,
		PredictedPose: pose.Identity(),
		Transform:     transform,
	}
	if a.Transform == (pose.Pose{}) {
		a.Transform = pose.Identity()
	}
	if r.config.FusionEnabled {
		a.fusion = fusion.NewWindow(r.config.FusionWindowSize)
	}
	if r.config.InterpolationEnabled {
		a.interp = interpolate.New(r.config.Interpolation)
		a.interp.Snap(a.Transform)
	}
	return a
}

func (r *Registry) insert(a *Anchor) {
	r.anchors[a.ID] = a
	for _, o := range r.observers {
		o.AnchorAdded(a)
	}
}

// applyUpdate runs the tracking state machine for one updated report.
func (r *Registry) applyUpdate(a *Anchor, h Handle) {
	prev := a.TrackingState

	a.TrackingState = h.TrackingState
	a.Reason = h.Reason
	a.Confidence = h.Confidence
	if !(a.Confidence >= 0) {
		a.Confidence = 0
	}
	a.NativePose = h.Pose
	a.TimestampMs = r.timestamp(h.TimestampMs)
	if len(h.Payload) > 0 {
		a.Payload = append(a.Payload[:0], h.Payload...)
	}

	if h.TrackingState.HasPose() {
		if err := pose.Validate(h.Pose); err != nil {
			monitoring.Logf("anchors: ignoring pose for %s: %v", a.ID, err)
		} else {
			r.updatePose(a, h.Pose, prev == TrackingNone)
		}
	}

	firstTracking := false
	if h.TrackingState == TrackingTracking && !a.everTracked {
		a.everTracked = true
		firstTracking = true
	}

	if prev != a.TrackingState {
		for _, o := range r.observers {
			o.TrackingChanged(a, prev, firstTracking)
		}
	}
}

// updatePose records native as the predicted pose and hands it to fusion and
// interpolation, which produce the applied transform.
func (r *Registry) updatePose(a *Anchor, native pose.Pose, wasNone bool) {
	oldPredicted := a.PredictedPose
	a.PredictedPose = native
	target := native

	if a.fusion != nil {
		if wasNone && !oldPredicted.IsDefault() {
			// re-baseline after a tracking gap
			a.fusion.Clear(a.Transform)
		}
		target = a.fusion.Push(pose.Sample{Pose: native, TimestampMs: a.TimestampMs})
	}

	if a.interp != nil {
		start := a.Transform
		if oldPredicted.IsDefault() {
			start = oldPredicted
		}
		a.interp.OnPoseUpdate(target, start, wasNone)
		a.Transform = a.interp.Current()
		return
	}
	a.Transform = target
}

// remove deletes a record and reports it. The caller decides whether the
// registry emptying should be announced.
func (r *Registry) remove(a *Anchor) {
	a.TrackingState = TrackingNone
	a.Reason = ReasonRemoved
	a.Confidence = 0
	a.interp = nil
	delete(r.anchors, a.ID)

	remaining := len(r.anchors)
	for _, o := range r.observers {
		o.AnchorRemoved(a, remaining)
	}
}

// removeOne deletes a single record and announces the registry emptying if
// it was the last one.
func (r *Registry) removeOne(a *Anchor) {
	r.remove(a)
	if len(r.anchors) == 0 {
		r.notifyEmptied()
	}
}

// removeAll deletes every record in ID order.
func (r *Registry) removeAll() int {
	n := 0
	for _, id := range r.sortedIDs() {
		r.remove(r.anchors[id])
		n++
	}
	return n
}

func (r *Registry) notifyEmptied() {
	for _, o := range r.observers {
		o.RegistryEmptied()
	}
}

func (r *Registry) notifyStopped() {
	for _, o := range r.observers {
		o.SubsystemStopped()
	}
}

func (r *Registry) attachInterpolator(a *Anchor) error {
	if a.interp != nil {
		monitoring.Errorf("anchors: anchor %s already has an interpolator", a.ID)
		return ErrInterpolatorAttached
	}
	a.interp = interpolate.New(r.config.Interpolation)
	a.interp.Snap(a.Transform)
	return nil
}

func (r *Registry) timestamp(reported int64) int64 {
	if reported != 0 {
		return reported
	}
	return timeutil.NowMillis(r.clock)
}

func (r *Registry) sortedIDs() []TrackableID {
	ids := make([]TrackableID, 0, len(r.anchors))
	for id := range r.anchors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
