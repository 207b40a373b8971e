package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// frame is a rigid transform: rotation matrix plus translation in metres.
type frame struct {
	r [3][3]float64
	t r3.Vector
}

func identityFrame() frame {
	return frame{r: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// mul composes two transforms (f then g, i.e. f * g).
func (f frame) mul(g frame) frame {
	var out frame
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.r[i][j] = f.r[i][0]*g.r[0][j] + f.r[i][1]*g.r[1][j] + f.r[i][2]*g.r[2][j]
		}
	}
	out.t = r3.Vector{
		X: f.r[0][0]*g.t.X + f.r[0][1]*g.t.Y + f.r[0][2]*g.t.Z + f.t.X,
		Y: f.r[1][0]*g.t.X + f.r[1][1]*g.t.Y + f.r[1][2]*g.t.Z + f.t.Y,
		Z: f.r[2][0]*g.t.X + f.r[2][1]*g.t.Y + f.r[2][2]*g.t.Z + f.t.Z,
	}
	return out
}

// dhTransform builds the standard DH link transform
// Rz(theta) * Tz(d) * Tx(a) * Rx(alpha).
func dhTransform(link dhLink, theta float64) frame {
	th := theta + link.Offset
	ct, st := math.Cos(th), math.Sin(th)
	ca, sa := math.Cos(link.Alpha), math.Sin(link.Alpha)
	return frame{
		r: [3][3]float64{
			{ct, -st * ca, st * sa},
			{st, ct * ca, -ct * sa},
			{0, sa, ca},
		},
		t: r3.Vector{X: link.A * ct, Y: link.A * st, Z: link.D},
	}
}

// eulerToRot builds a rotation matrix from XYZ Euler angles in radians,
// composed as Rz(rz) * Ry(ry) * Rx(rx).
func eulerToRot(rx, ry, rz float64) [3][3]float64 {
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)
	return [3][3]float64{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx},
		{-sy, cy * sx, cy * cx},
	}
}

// rotToEuler recovers XYZ Euler angles (radians) from a rotation matrix.
// At the ry = +-90deg singularity rx is folded into rz.
func rotToEuler(r [3][3]float64) (rx, ry, rz float64) {
	sy := -r[2][0]
	if sy > 1 {
		sy = 1
	} else if sy < -1 {
		sy = -1
	}
	ry = math.Asin(sy)
	if math.Abs(sy) < 1-1e-10 {
		rx = math.Atan2(r[2][1], r[2][2])
		rz = math.Atan2(r[1][0], r[0][0])
	} else {
		rx = 0
		rz = math.Atan2(-r[0][1], r[1][1])
	}
	return rx, ry, rz
}

// poseToFrame converts a wire Pose (mm/deg) to an internal frame (m/rad).
func poseToFrame(p Pose) frame {
	const d2r = math.Pi / 180.0
	return frame{
		r: eulerToRot(p.RX*d2r, p.RY*d2r, p.RZ*d2r),
		t: r3.Vector{X: p.X / 1000.0, Y: p.Y / 1000.0, Z: p.Z / 1000.0},
	}
}

// frameToPose converts an internal frame back to a wire Pose.
func frameToPose(f frame) Pose {
	const r2d = 180.0 / math.Pi
	rx, ry, rz := rotToEuler(f.r)
	return Pose{
		X:  f.t.X * 1000.0,
		Y:  f.t.Y * 1000.0,
		Z:  f.t.Z * 1000.0,
		RX: rx * r2d,
		RY: ry * r2d,
		RZ: rz * r2d,
	}
}

// fkFrame computes the TCP frame for a joint configuration.
func (m *Model) fkFrame(j JointAngles) frame {
	rad := j.Radians()
	f := identityFrame()
	for i := 0; i < NumJoints; i++ {
		f = f.mul(dhTransform(m.links[i], rad[i]))
	}
	if m.TCP != (Pose{}) {
		f = f.mul(poseToFrame(m.TCP))
	}
	return f
}

// ForwardKinematics computes the TCP pose for a joint configuration.
// It is closed-form and deterministic.
func (m *Model) ForwardKinematics(j JointAngles) Pose {
	return frameToPose(m.fkFrame(j))
}
