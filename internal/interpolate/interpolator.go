// Package interpolate smooths jumps in an anchor's predicted pose by easing
// the applied pose from where it was to where it should now be.
package interpolate

import (
	"math"

	"github.com/tanema/gween/ease"

	"github.com/banshee-data/anchorsync/internal/pose"
)

const (
	// DefaultMaxDurationSeconds caps how long a single interpolation may run.
	DefaultMaxDurationSeconds = 3.0
	// DefaultMetersPerSecond is the travel rate used to scale duration:
	// one second for every 10 cm.
	DefaultMetersPerSecond = 0.1
)

// Config controls interpolation timing.
type Config struct {
	MaxDurationSeconds float64
	MetersPerSecond    float64
}

// DefaultConfig returns the production timing parameters.
func DefaultConfig() Config {
	return Config{
		MaxDurationSeconds: DefaultMaxDurationSeconds,
		MetersPerSecond:    DefaultMetersPerSecond,
	}
}

// Interpolator animates one anchor's applied pose. It is driven by the frame
// loop: OnPoseUpdate retargets, Tick advances. There is at most one per anchor.
type Interpolator struct {
	cfg    Config
	easeFn ease.TweenFunc

	start   pose.Pose
	target  pose.Pose
	current pose.Pose

	elapsed  float64
	duration float64
	active   bool
}

// New creates an idle interpolator. Zero or negative config fields fall back
// to the defaults.
func New(cfg Config) *Interpolator {
	if cfg.MaxDurationSeconds <= 0 {
		cfg.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if cfg.MetersPerSecond <= 0 {
		cfg.MetersPerSecond = DefaultMetersPerSecond
	}
	return &Interpolator{
		cfg:     cfg,
		easeFn:  ease.InOutQuad,
		current: pose.Identity(),
	}
}

// Duration returns the interpolation time in seconds for travelling from
// start to target: distance / rate, capped at the configured ceiling.
func (ip *Interpolator) Duration(start, target pose.Pose) float64 {
	return math.Min(ip.cfg.MaxDurationSeconds, pose.Distance(start, target)/ip.cfg.MetersPerSecond)
}

// OnPoseUpdate retargets the interpolation at newPose.
//
// oldStart is where the anchor stood before this update. While it is still
// the default sentinel the anchor has never been placed, so newPose is applied
// immediately. wasNone means tracking was just regained; the gap has no
// meaningful path to animate through, so that also jumps.
func (ip *Interpolator) OnPoseUpdate(newPose, oldStart pose.Pose, wasNone bool) {
	if oldStart.IsDefault() || wasNone {
		ip.jump(newPose)
		return
	}

	start := oldStart
	if ip.active {
		start = ip.current
	}

	ip.start = start
	ip.target = newPose
	ip.current = start
	ip.elapsed = 0
	ip.duration = ip.Duration(start, newPose)
	ip.active = ip.duration > 0
	if !ip.active {
		ip.current = newPose
	}
}

// Tick advances the interpolation by dt seconds and returns the pose to
// apply. Once elapsed reaches the duration the target is returned exactly.
// Negative or non-finite dt leaves the interpolation where it is.
func (ip *Interpolator) Tick(dt float64) pose.Pose {
	if !ip.active || !(dt >= 0) || math.IsInf(dt, 1) {
		return ip.current
	}

	ip.elapsed += dt
	if ip.elapsed >= ip.duration {
		ip.current = ip.target
		ip.active = false
		return ip.current
	}

	t := float32(ip.elapsed / ip.duration)
	eased := float64(ip.easeFn(t, 0, 1, 1))
	ip.current = pose.Interpolate(ip.start, ip.target, eased)
	return ip.current
}

// Snap cancels any interpolation in flight and holds p.
func (ip *Interpolator) Snap(p pose.Pose) {
	ip.jump(p)
}

func (ip *Interpolator) jump(p pose.Pose) {
	ip.start = p
	ip.target = p
	ip.current = p
	ip.elapsed = 0
	ip.duration = 0
	ip.active = false
}

// Active reports whether an interpolation is in flight.
func (ip *Interpolator) Active() bool { return ip.active }

// Current returns the most recently applied pose.
func (ip *Interpolator) Current() pose.Pose { return ip.current }

// Target returns the pose being interpolated towards.
func (ip *Interpolator) Target() pose.Pose { return ip.target }

// Remaining returns the seconds left before the target is reached.
func (ip *Interpolator) Remaining() float64 {
	if !ip.active {
		return 0
	}
	return ip.duration - ip.elapsed
}

// TotalDuration returns the duration of the current (or last) interpolation.
func (ip *Interpolator) TotalDuration() float64 { return ip.duration }
