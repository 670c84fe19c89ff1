// Package pose provides the rigid pose value types shared by the anchor
// pipeline: a position in metres plus a unit quaternion rotation, and
// timestamped samples of both.
package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RotationNormTolerance is how far |q| may drift from 1 before a rotation is
// rejected as not being a proper unit quaternion.
const RotationNormTolerance = 0.01

// slerpLinearThreshold is the cosine above which slerp falls back to a
// normalised lerp to avoid dividing by sin(θ) ≈ 0.
const slerpLinearThreshold = 0.9995

// Pose is a rigid transform: translation followed by rotation.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

// Sample is a pose observed at a given frame time.
type Sample struct {
	Pose        Pose
	TimestampMs int64 // monotonic milliseconds, same clock as frame updates
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// New builds a pose from a position and a rotation. The rotation is
// normalised; a zero quaternion becomes the identity rotation.
func New(x, y, z float64, rot quat.Number) Pose {
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Rotation: Normalize(rot)}
}

// At returns a pose at the given position with identity rotation.
func At(x, y, z float64) Pose {
	return New(x, y, z, quat.Number{Real: 1})
}

// FromAxisAngle returns a rotation of angle radians about axis.
func FromAxisAngle(axis r3.Vec, angle float64) quat.Number {
	return quat.Number(r3.NewRotation(angle, axis))
}

// IsDefault reports whether p is still the default sentinel: origin with
// either a zero or an identity rotation. Freshly created anchors carry this
// pose until their first tracked update.
func (p Pose) IsDefault() bool {
	if p.Position != (r3.Vec{}) {
		return false
	}
	return p.Rotation == (quat.Number{}) || p.Rotation == (quat.Number{Real: 1})
}

// String formats the pose for logs.
func (p Pose) String() string {
	return fmt.Sprintf("pos(%.3f, %.3f, %.3f) rot(%.4f, %.4f, %.4f, %.4f)",
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag)
}

// Distance returns the Euclidean distance between the positions of a and b.
func Distance(a, b Pose) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

// Lerp linearly interpolates between two positions.
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Normalize returns q scaled to unit length. The zero quaternion maps to
// the identity rotation.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Slerp spherically interpolates between two unit rotations along the
// shorter arc.
func Slerp(a, b quat.Number, t float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > slerpLinearThreshold {
		return Normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}

	theta0 := math.Acos(dot)
	theta := theta0 * t
	sin0 := math.Sin(theta0)
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sin0
	s1 := math.Sin(theta) / sin0
	return quat.Add(quat.Scale(s0, a), quat.Scale(s1, b))
}

// Interpolate blends position linearly and rotation spherically.
func Interpolate(a, b Pose, t float64) Pose {
	return Pose{
		Position: Lerp(a.Position, b.Position, t),
		Rotation: Slerp(a.Rotation, b.Rotation, t),
	}
}

// Validate checks that every component is finite and the rotation is a unit
// quaternion within RotationNormTolerance.
func Validate(p Pose) error {
	for _, v := range []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("pose has non-finite component: %s", p)
		}
	}
	if n := quat.Abs(p.Rotation); math.Abs(n-1) > RotationNormTolerance {
		return fmt.Errorf("rotation is not a unit quaternion (|q|=%.4f)", n)
	}
	return nil
}
