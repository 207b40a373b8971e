// Package kinematics provides the geometric model of the PAROL6 arm:
// forward kinematics, a numerical Jacobian, and a damped least-squares
// inverse-kinematics solver with subdivision and seed-sweep recovery.
//
// Units at the package boundary follow the wire convention: joint angles
// in degrees, cartesian position in millimetres, orientation as XYZ Euler
// angles in degrees. Internally the solver works in radians and metres.
package kinematics

import (
	"fmt"
	"math"
)

// NumJoints is the number of controlled axes (J1-J6).
const NumJoints = 6

// JointAngles holds one angle per axis, in degrees.
type JointAngles [NumJoints]float64

// Add returns j with other added element-wise.
func (j JointAngles) Add(other JointAngles) JointAngles {
	var out JointAngles
	for i := range j {
		out[i] = j[i] + other[i]
	}
	return out
}

// Radians converts all angles to radians.
func (j JointAngles) Radians() [NumJoints]float64 {
	var out [NumJoints]float64
	for i, deg := range j {
		out[i] = deg * math.Pi / 180.0
	}
	return out
}

// JointAnglesFromRadians converts a radian vector to degrees.
func JointAnglesFromRadians(rad [NumJoints]float64) JointAngles {
	var out JointAngles
	for i, r := range rad {
		out[i] = r * 180.0 / math.Pi
	}
	return out
}

func (j JointAngles) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f %.2f %.2f]",
		j[0], j[1], j[2], j[3], j[4], j[5])
}

// Pose is a cartesian TCP pose relative to the base frame.
// Position in millimetres, orientation as XYZ Euler angles in degrees.
type Pose struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
	RZ float64 `json:"rz"`
}

// Vector returns the pose as a 6-element slice [x y z rx ry rz].
func (p Pose) Vector() []float64 {
	return []float64{p.X, p.Y, p.Z, p.RX, p.RY, p.RZ}
}

// PoseFromVector builds a Pose from a 6-element slice.
func PoseFromVector(v []float64) (Pose, error) {
	if len(v) != 6 {
		return Pose{}, fmt.Errorf("pose vector must have 6 elements, got %d", len(v))
	}
	return Pose{X: v[0], Y: v[1], Z: v[2], RX: v[3], RY: v[4], RZ: v[5]}, nil
}

func (p Pose) String() string {
	return fmt.Sprintf("xyz=(%.1f %.1f %.1f)mm rpy=(%.1f %.1f %.1f)deg",
		p.X, p.Y, p.Z, p.RX, p.RY, p.RZ)
}

// AxisMask selects which of the six pose components an IK solve must match.
// Index 0-2 are X/Y/Z position, 3-5 are RX/RY/RZ orientation.
type AxisMask [6]bool

// FullMask matches all six pose components.
func FullMask() AxisMask {
	return AxisMask{true, true, true, true, true, true}
}

// PositionMask matches position only, leaving orientation free.
func PositionMask() AxisMask {
	return AxisMask{true, true, true, false, false, false}
}

// JointLimit is the allowed range for one axis, in degrees.
type JointLimit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether deg lies within the limit.
func (l JointLimit) Contains(deg float64) bool {
	return deg >= l.Min && deg <= l.Max
}

// Clamp restricts deg to the limit range.
func (l JointLimit) Clamp(deg float64) float64 {
	if deg < l.Min {
		return l.Min
	}
	if deg > l.Max {
		return l.Max
	}
	return deg
}
