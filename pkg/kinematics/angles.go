package kinematics

import "math"

// NormalizeDeg wraps an angle into the [-180, 180) range.
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg+180.0, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg - 180.0
}

// ShortestArcDelta returns the signed change from a to b along the smaller
// of the two arcs, so 170 -> -170 yields +20 (crossing +-180), never -340.
func ShortestArcDelta(a, b float64) float64 {
	return NormalizeDeg(b - a)
}

// LerpAngle interpolates between two angles along the shortest arc.
// t is in [0, 1].
func LerpAngle(a, b, t float64) float64 {
	return NormalizeDeg(a + ShortestArcDelta(a, b)*t)
}

// InterpolatePose blends two poses: linear on position, shortest arc on
// each orientation component. t is in [0, 1].
func InterpolatePose(a, b Pose, t float64) Pose {
	return Pose{
		X:  a.X + (b.X-a.X)*t,
		Y:  a.Y + (b.Y-a.Y)*t,
		Z:  a.Z + (b.Z-a.Z)*t,
		RX: LerpAngle(a.RX, b.RX, t),
		RY: LerpAngle(a.RY, b.RY, t),
		RZ: LerpAngle(a.RZ, b.RZ, t),
	}
}

// unwrapToward adjusts each solved angle by whole turns so it lands as
// close as possible to the seed. -179 and 181 describe the same joint
// position but differ by a full revolution of motion.
func unwrapToward(solution, seed JointAngles) JointAngles {
	out := solution
	for i := range out {
		for out[i]-seed[i] > 180.0 {
			out[i] -= 360.0
		}
		for out[i]-seed[i] < -180.0 {
			out[i] += 360.0
		}
	}
	return out
}
