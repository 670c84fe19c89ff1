// Package fusion stabilises noisy localization results by averaging a short
// sliding window of recent pose samples per anchor.
package fusion

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/anchorsync/internal/pose"
)

// DefaultWindowSize is the number of samples retained when no size is given.
const DefaultWindowSize = 5

// Window is a fixed-capacity FIFO of pose samples.
//
// The fused rotation is the rotation of the newest sample. Rotations are not
// averaged; callers rely on that output staying as is.
type Window struct {
	samples  []pose.Sample
	capacity int
}

// NewWindow creates a window holding at most capacity samples. Non-positive
// capacities fall back to DefaultWindowSize.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		samples:  make([]pose.Sample, 0, capacity),
		capacity: capacity,
	}
}

// Push appends s, evicting the oldest sample when full, and returns the
// recomputed fused pose.
func (w *Window) Push(s pose.Sample) pose.Pose {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.capacity-1]
	}
	w.samples = append(w.samples, s)
	return w.Fused()
}

// Fused returns the mean of the buffered positions with the newest rotation.
// An empty window yields the identity pose.
func (w *Window) Fused() pose.Pose {
	if len(w.samples) == 0 {
		return pose.Identity()
	}
	var sum r3.Vec
	for _, s := range w.samples {
		sum = r3.Add(sum, s.Pose.Position)
	}
	return pose.Pose{
		Position: r3.Scale(1/float64(len(w.samples)), sum),
		Rotation: w.samples[len(w.samples)-1].Pose.Rotation,
	}
}

// Clear re-baselines the window so it holds only baseline.
func (w *Window) Clear(baseline pose.Pose) {
	w.samples = w.samples[:0]
	w.samples = append(w.samples, pose.Sample{Pose: baseline})
}

// Len returns the number of buffered samples.
func (w *Window) Len() int { return len(w.samples) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.capacity }

// Samples returns a copy of the buffered samples, oldest first.
func (w *Window) Samples() []pose.Sample {
	out := make([]pose.Sample, len(w.samples))
	copy(out, w.samples)
	return out
}
