package kinematics

import "math"

// dhLink is one standard Denavit-Hartenberg row. Lengths in metres,
// angles in radians. Theta is the joint variable; Offset is added to it.
type dhLink struct {
	D      float64
	A      float64
	Alpha  float64
	Offset float64
}

// Model describes the arm geometry, per-axis limits and rate caps.
// A Model is immutable after construction and safe for concurrent use.
type Model struct {
	links [NumJoints]dhLink

	// Limits holds the per-axis joint limits in degrees.
	Limits [NumJoints]JointLimit

	// MaxSpeed and MaxAccel are the per-axis rate caps, in deg/s and
	// deg/s^2, that speed/accel percentages scale against.
	MaxSpeed [NumJoints]float64
	MaxAccel [NumJoints]float64

	// TCP is the tool-center-point transform appended to the flange.
	TCP Pose

	// Home is the parked joint configuration used by the HOME command.
	Home JointAngles
}

// Link lengths of the PAROL6 arm, in metres.
const (
	linkD1 = 0.11050 // base to J2 height
	linkA2 = 0.02342 // J1 to J2 lateral offset
	linkA3 = 0.18000 // upper arm
	linkA4 = 0.04350 // elbow offset
	linkD5 = 0.17635 // forearm
	linkD6 = 0.03400 // flange
)

// DefaultModel returns the PAROL6 geometry with its stock joint limits,
// rate caps and a zero TCP offset.
func DefaultModel() *Model {
	m := &Model{
		links: [NumJoints]dhLink{
			{D: linkD1, A: linkA2, Alpha: -math.Pi / 2, Offset: 0},
			{D: 0, A: linkA3, Alpha: math.Pi, Offset: -math.Pi / 2},
			{D: 0, A: -linkA4, Alpha: math.Pi / 2, Offset: math.Pi},
			{D: -linkD5, A: 0, Alpha: -math.Pi / 2, Offset: 0},
			{D: 0, A: 0, Alpha: math.Pi / 2, Offset: 0},
			{D: -linkD6, A: 0, Alpha: math.Pi, Offset: math.Pi},
		},
		Limits: [NumJoints]JointLimit{
			{Min: -123.0, Max: 123.0},
			{Min: -145.0, Max: -3.0},
			{Min: -107.0, Max: 107.0},
			{Min: -105.0, Max: 105.0},
			{Min: -122.0, Max: 122.0},
			{Min: -180.0, Max: 180.0},
		},
		MaxSpeed: [NumJoints]float64{90, 75, 90, 120, 120, 180},
		MaxAccel: [NumJoints]float64{180, 150, 180, 240, 240, 360},
		Home:     JointAngles{0, -90, 90, 0, 0, 0},
	}
	return m
}

// WithTCP returns a shallow copy of the model with the given TCP offset.
func (m *Model) WithTCP(tcp Pose) *Model {
	clone := *m
	clone.TCP = tcp
	return &clone
}

// WithLimits returns a shallow copy with overridden joint limits.
func (m *Model) WithLimits(limits [NumJoints]JointLimit) *Model {
	clone := *m
	clone.Limits = limits
	return &clone
}

// ClampToLimits restricts every axis of j to its configured range.
func (m *Model) ClampToLimits(j JointAngles) JointAngles {
	var out JointAngles
	for i := range j {
		out[i] = m.Limits[i].Clamp(j[i])
	}
	return out
}

// CheckLimits returns the indices of axes whose angle violates its limit.
func (m *Model) CheckLimits(j JointAngles) []int {
	var violations []int
	for i := range j {
		if !m.Limits[i].Contains(j[i]) {
			violations = append(violations, i)
		}
	}
	return violations
}
