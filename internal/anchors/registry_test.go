package anchors

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorsync/internal/interpolate"
	"github.com/banshee-data/anchorsync/internal/monitoring"
	"github.com/banshee-data/anchorsync/internal/pose"
	"github.com/banshee-data/anchorsync/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

// recorder logs observer callbacks as short strings.
type recorder struct {
	calls []string
}

func (r *recorder) AnchorAdded(a *Anchor) {
	r.calls = append(r.calls, "added "+string(a.ID))
}

func (r *recorder) TrackingChanged(a *Anchor, prev TrackingState, first bool) {
	s := fmt.Sprintf("tracking %s %s->%s", a.ID, prev, a.TrackingState)
	if first {
		s += " first"
	}
	r.calls = append(r.calls, s)
}

func (r *recorder) AnchorRemoved(a *Anchor, remaining int) {
	r.calls = append(r.calls, fmt.Sprintf("removed %s %d", a.ID, remaining))
}

func (r *recorder) RegistryEmptied()  { r.calls = append(r.calls, "emptied") }
func (r *recorder) SubsystemStopped() { r.calls = append(r.calls, "stopped") }

func handle(id string, state TrackingState, x float64) Handle {
	return Handle{ID: TrackableID(id), TrackingState: state, Confidence: 1, Pose: pose.At(x, 0, 0)}
}

func newTestRegistry(cfg RegistryConfig) (*Registry, *recorder) {
	r := NewRegistry(cfg, timeutil.NewMockClock(time.UnixMilli(1000)))
	rec := &recorder{}
	r.AddObserver(rec)
	return r, rec
}

func TestProcessFrame_AddIsIdempotent(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})

	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 1)}})
	first := r.Get("A")
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 2)}})

	assert.Equal(t, 1, r.Len())
	assert.Same(t, first, r.Get("A"))
	assert.Equal(t, []string{"added A"}, rec.calls)
}

func TestProcessFrame_NewRecordDefaults(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})

	r.ProcessFrame(Changes{Added: []Handle{{ID: "A", Pose: pose.At(1, 2, 3)}}})
	a := r.Get("A")
	require.NotNil(t, a)
	assert.Equal(t, TrackingNone, a.TrackingState)
	assert.Equal(t, ReasonInitializing, a.Reason)
	assert.Equal(t, pose.Identity(), a.PredictedPose)
	assert.Equal(t, pose.At(1, 2, 3), a.Transform)
	assert.Equal(t, int64(1000), a.TimestampMs, "missing timestamps come from the clock")
	assert.False(t, a.Pending())
}

func TestRegisterPending_ConfirmedByAdd(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})

	a := r.registerPending(Handle{ID: "A"}, pose.At(0, 1, 0), []byte("blob"))
	require.True(t, a.Pending())
	assert.Equal(t, pose.At(0, 1, 0), a.Transform)
	assert.Equal(t, []byte("blob"), a.Payload)

	r.ProcessFrame(Changes{Added: []Handle{{ID: "A"}}})
	assert.False(t, a.Pending())
	assert.Equal(t, []string{"added A"}, rec.calls)
}

func TestProcessFrame_UpdateForUnknownRegisters(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	require.NotNil(t, r.Get("A"))
	assert.Equal(t, []string{"added A", "tracking A none->tracking first"}, rec.calls)
}

func TestApplyUpdate_FirstLocalizationEdge(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 1)}})

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingNone, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})

	assert.Equal(t, []string{
		"added A",
		"tracking A none->tracking first",
		"tracking A tracking->none",
		"tracking A none->tracking",
	}, rec.calls)
	assert.True(t, r.Get("A").EverTracked())
}

func TestApplyUpdate_LimitedBeforeTracking(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 1)}})

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingLimited, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingLimited, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})

	assert.Equal(t, []string{
		"added A",
		"tracking A none->limited",
		"tracking A limited->tracking first",
	}, rec.calls, "unchanged state is not reported")
}

func TestApplyUpdate_PredictedPoseFreezesWhileLost(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 0)}})
	a := r.Get("A")

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	require.Equal(t, pose.At(1, 0, 0), a.PredictedPose)

	for x := 2.0; x < 5; x++ {
		r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingNone, x)}})
		assert.Equal(t, pose.At(1, 0, 0), a.PredictedPose, "frozen while lost")
		assert.Equal(t, pose.At(1, 0, 0), a.Transform)
		assert.Equal(t, pose.At(x, 0, 0), a.NativePose)
	}

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingLimited, 7)}})
	assert.Equal(t, pose.At(7, 0, 0), a.PredictedPose)
}

func TestApplyUpdate_ClampsConfidence(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	h := handle("A", TrackingLimited, 1)
	h.Confidence = -0.5
	r.ProcessFrame(Changes{Updated: []Handle{h}})
	assert.Zero(t, r.Get("A").Confidence)

	h.Confidence = math.NaN()
	r.ProcessFrame(Changes{Updated: []Handle{h}})
	assert.Zero(t, r.Get("A").Confidence)

	h.Confidence = 0.7
	r.ProcessFrame(Changes{Updated: []Handle{h}})
	assert.Equal(t, 0.7, r.Get("A").Confidence)
}

func TestProcessFrame_AddedAlreadyTracking(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	h := handle("A", TrackingTracking, 3)
	h.Reason = ReasonNone
	h.Confidence = 0.8
	r.ProcessFrame(Changes{Added: []Handle{h}})

	a := r.Get("A")
	require.NotNil(t, a)
	assert.Equal(t, TrackingTracking, a.TrackingState)
	assert.Equal(t, ReasonNone, a.Reason)
	assert.Equal(t, 0.8, a.Confidence)
	assert.Equal(t, pose.At(3, 0, 0), a.PredictedPose)
	assert.True(t, a.EverTracked())
	assert.Equal(t, []string{"added A", "tracking A none->tracking first"}, rec.calls)
}

func TestProcessFrame_ReAddClearsConfirmedDestruction(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 0)}})
	a := r.Get("A")
	a.DeferredDestruction = true

	r.ProcessFrame(Changes{Removed: []Handle{handle("A", TrackingNone, 0)}})
	require.Same(t, a, r.Get("A"))
	require.True(t, a.nativeRemoved)

	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 0)}})
	assert.Same(t, a, r.Get("A"))
	assert.False(t, a.DeferredDestruction)
	assert.False(t, a.nativeRemoved)
}

func TestApplyUpdate_InvalidPoseIgnored(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	a := r.Get("A")

	bad := handle("A", TrackingTracking, math.NaN())
	r.ProcessFrame(Changes{Updated: []Handle{bad}})
	assert.Equal(t, pose.At(1, 0, 0), a.PredictedPose)
	assert.Equal(t, TrackingTracking, a.TrackingState)
}

func TestUpdatePose_FusionAveragesPositions(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{FusionEnabled: true, FusionWindowSize: 3})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 0)}})
	a := r.Get("A")

	for _, x := range []float64{1, 2, 3, 4} {
		r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, x)}})
	}
	assert.Equal(t, 3, a.FusionSamples())
	assert.InDelta(t, 3.0, a.Transform.Position.X, 1e-12, "mean of 2, 3, 4")
	assert.Equal(t, pose.At(4, 0, 0), a.PredictedPose, "predicted pose is the native snapshot")
}

func TestUpdatePose_FusionRebaselinesAfterGap(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{FusionEnabled: true, FusionWindowSize: 5})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 0)}})
	a := r.Get("A")

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 2)}})
	require.InDelta(t, 2.0, a.Transform.Position.X, 1e-12)

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingNone, 9)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 4)}})

	// window was reset to the transform (2) before 4 was pushed
	assert.Equal(t, 2, a.FusionSamples())
	assert.InDelta(t, 3.0, a.Transform.Position.X, 1e-12)
}

func TestUpdatePose_FusionKeepsNewestRotation(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{FusionEnabled: true, FusionWindowSize: 5})
	rot := pose.FromAxisAngle(r3.Vec{Y: 1}, math.Pi/3)

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	h := handle("A", TrackingTracking, 3)
	h.Pose = pose.New(3, 0, 0, rot)
	r.ProcessFrame(Changes{Updated: []Handle{h}})

	assert.Equal(t, h.Pose.Rotation, r.Get("A").Transform.Rotation)
}

func TestUpdatePose_InterpolatesAndTicks(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{
		InterpolationEnabled: true,
		Interpolation:        interpolate.DefaultConfig(),
	})
	r.ProcessFrame(Changes{Added: []Handle{handle("A", TrackingNone, 1)}})
	a := r.Get("A")
	require.True(t, a.HasInterpolator())

	// first pose jumps
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	assert.Equal(t, pose.At(1, 0, 0), a.Transform)
	assert.False(t, a.Interpolating())

	// 20 cm move animates over two seconds
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1.2)}})
	assert.True(t, a.Interpolating())
	assert.Equal(t, pose.At(1, 0, 0), a.Transform)
	assert.Equal(t, pose.At(1.2, 0, 0), a.PredictedPose)

	r.Tick(1.0)
	assert.InDelta(t, 1.1, a.Transform.Position.X, 1e-6)
	r.Tick(1.5)
	assert.Equal(t, pose.At(1.2, 0, 0), a.Transform)
	assert.False(t, a.Interpolating())
}

func TestUpdatePose_RegainJumps(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{
		InterpolationEnabled: true,
		Interpolation:        interpolate.DefaultConfig(),
	})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingNone, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 2)}})

	a := r.Get("A")
	assert.False(t, a.Interpolating())
	assert.Equal(t, pose.At(2, 0, 0), a.Transform)
}

func TestProcessFrame_RemovalOverridesState(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	var removed Anchor
	r.AddObserver(&removalSpy{fn: func(a *Anchor) { removed = a.Snapshot() }})

	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})
	r.ProcessFrame(Changes{Removed: []Handle{{ID: "A"}}})

	assert.Nil(t, r.Get("A"))
	assert.Equal(t, TrackingNone, removed.TrackingState)
	assert.Equal(t, ReasonRemoved, removed.Reason)
	assert.Zero(t, removed.Confidence)
}

type removalSpy struct {
	recorder
	fn func(a *Anchor)
}

func (s *removalSpy) AnchorRemoved(a *Anchor, _ int) { s.fn(a) }

func TestProcessFrame_BatchRemovalEmptiesOnce(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "A"}, {ID: "B"}, {ID: "C"}}})
	rec.calls = nil

	r.ProcessFrame(Changes{Removed: []Handle{{ID: "A"}, {ID: "B"}, {ID: "C"}}})
	assert.Equal(t, []string{"removed A 2", "removed B 1", "removed C 0", "emptied"}, rec.calls)
}

func TestProcessFrame_PartialRemovalDoesNotEmpty(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "A"}, {ID: "B"}}})
	rec.calls = nil

	r.ProcessFrame(Changes{Removed: []Handle{{ID: "A"}, {ID: "missing"}}})
	assert.Equal(t, []string{"removed A 1"}, rec.calls)
}

func TestProcessFrame_DeferredRecordAwaitsConfirmation(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "A"}}})
	a := r.Get("A")
	a.DeferredDestruction = true
	rec.calls = nil

	r.ProcessFrame(Changes{Removed: []Handle{{ID: "A"}}})
	assert.Same(t, a, r.Get("A"), "kept until the confirming destroy")
	assert.True(t, a.nativeRemoved)
	assert.Empty(t, rec.calls)
}

func TestRemoveAll_OrderedWithoutEmptied(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "C"}, {ID: "A"}, {ID: "B"}}})
	rec.calls = nil

	assert.Equal(t, 3, r.removeAll())
	assert.Equal(t, []string{"removed A 2", "removed B 1", "removed C 0"}, rec.calls)
}

func TestAttachInterpolator_Once(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "A", Pose: pose.At(1, 1, 1)}}})
	a := r.Get("A")

	require.NoError(t, r.attachInterpolator(a))
	ip := a.interp
	assert.ErrorIs(t, r.attachInterpolator(a), ErrInterpolatorAttached)
	assert.Same(t, ip, a.interp, "second attach leaves the first in place")
	assert.Equal(t, pose.At(1, 1, 1), ip.Current())
}

func TestAll_SortedByID(t *testing.T) {
	r, _ := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "b"}, {ID: "c"}, {ID: "a"}}})

	var ids []TrackableID
	for _, a := range r.All() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []TrackableID{"a", "b", "c"}, ids)
}

func TestSetTrackingState_NoNotification(t *testing.T) {
	r, rec := newTestRegistry(RegistryConfig{})
	r.ProcessFrame(Changes{Added: []Handle{{ID: "A"}}})
	rec.calls = nil

	a := r.Get("A")
	a.SetTrackingState(TrackingTracking, ReasonNone, 0.8, true)
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingNone, 1)}})
	r.ProcessFrame(Changes{Updated: []Handle{handle("A", TrackingTracking, 1)}})

	assert.Equal(t, []string{"tracking A tracking->none", "tracking A none->tracking"}, rec.calls,
		"a staged record that already tracked does not localize again")
}
