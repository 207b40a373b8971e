package planner

import (
	"math"
	"time"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// TickInterval is the control period trajectories are sampled at.
const TickInterval = 10 * time.Millisecond

const tickSeconds = 0.01

// Planner builds trajectories against one kinematic model and IK solver.
// It holds no mutable state and is safe for concurrent use.
type Planner struct {
	model  *kinematics.Model
	solver *kinematics.Solver
}

// New builds a planner over the given model and solver.
func New(model *kinematics.Model, solver *kinematics.Solver) *Planner {
	return &Planner{model: model, solver: solver}
}

// PlanJointMove interpolates directly in joint space. All axes follow one
// normalized trapezoidal profile sized by the slowest joint, so they
// arrive together and no axis exceeds speedPct/accelPct of its caps.
func (p *Planner) PlanJointMove(current, target kinematics.JointAngles, speedPct, accelPct float64, requestID string) (*Trajectory, error) {
	if speedPct <= 0 || speedPct > 100 {
		return nil, &ValidationError{Field: "speed_pct", Msg: "must be in (0, 100]"}
	}
	if accelPct <= 0 || accelPct > 100 {
		return nil, &ValidationError{Field: "accel_pct", Msg: "must be in (0, 100]"}
	}
	if violations := p.model.CheckLimits(target); len(violations) > 0 {
		return nil, &ValidationError{Field: "target", Msg: "joint target outside limits"}
	}

	// Per-joint durations under the scaled caps; the slowest joint
	// defines the move time and the shared profile shape.
	var profile trapezoid
	for i := 0; i < kinematics.NumJoints; i++ {
		d := math.Abs(target[i] - current[i])
		if d == 0 {
			continue
		}
		v := p.model.MaxSpeed[i] * speedPct / 100.0
		a := p.model.MaxAccel[i] * accelPct / 100.0
		if tp := newTrapezoid(d, v, a); tp.total > profile.total {
			profile = tp
		}
	}
	if profile.total == 0 {
		// Already at the target; a single setpoint keeps the executor
		// semantics uniform.
		return &Trajectory{RequestID: requestID, Kind: MoveJoint,
			Setpoints: []kinematics.JointAngles{target}}, nil
	}

	ticks := int(math.Ceil(profile.total / tickSeconds))
	setpoints := make([]kinematics.JointAngles, 0, ticks)
	for k := 1; k <= ticks; k++ {
		t := float64(k) * tickSeconds
		s := profile.progress(t)
		var sp kinematics.JointAngles
		for i := 0; i < kinematics.NumJoints; i++ {
			sp[i] = current[i] + (target[i]-current[i])*s
		}
		setpoints = append(setpoints, sp)
	}
	// Land exactly on the target regardless of tick rounding.
	setpoints[len(setpoints)-1] = target

	return &Trajectory{RequestID: requestID, Kind: MoveJoint, Setpoints: setpoints}, nil
}

// PlanHomeMove is a joint move to the model's parked configuration.
func (p *Planner) PlanHomeMove(current kinematics.JointAngles, requestID string) (*Trajectory, error) {
	traj, err := p.PlanJointMove(current, p.model.Home, 30, 30, requestID)
	if err != nil {
		return nil, err
	}
	traj.Kind = MoveHome
	return traj, nil
}

// PlanCartesianMove generates floor(duration/0.01) waypoints between the
// current pose and the target, then batch-solves IK for each, seeding
// every solve with the previous waypoint's result for continuity. The
// whole plan fails on any unrecovered waypoint; no partial trajectory is
// ever returned. Progress is reported through onProgress when non-nil.
//
// This runs for as long as the IK needs and must never be called from
// the control loop.
func (p *Planner) PlanCartesianMove(currentJoints kinematics.JointAngles, target kinematics.Pose, durationS float64, requestID string, onProgress ProgressFunc) (*Trajectory, *Report, error) {
	if durationS <= tickSeconds {
		return nil, nil, &ValidationError{Field: "duration_s", Msg: "must exceed one 10ms tick"}
	}
	count := int(math.Floor(durationS / tickSeconds))

	startPose := p.model.ForwardKinematics(currentJoints)
	seed := currentJoints
	setpoints := make([]kinematics.JointAngles, 0, count)
	report := &Report{Waypoints: count}

	for i := 0; i < count; i++ {
		t := float64(i+1) / float64(count)
		waypoint := kinematics.InterpolatePose(startPose, target, t)

		result := p.solver.Solve(waypoint, seed)
		report.Iterations += result.Iterations
		report.Recoveries += result.Recoveries
		if !result.Converged {
			return nil, nil, &IKFailure{Waypoint: i, Total: count, Residual: result.Residual}
		}

		setpoints = append(setpoints, result.Angles)
		seed = result.Angles

		if onProgress != nil {
			onProgress(Progress{Current: i + 1, Total: count, Recoveries: report.Recoveries})
		}
	}

	return &Trajectory{RequestID: requestID, Kind: MoveCartesian, Setpoints: setpoints}, report, nil
}

// trapezoid is a normalized velocity profile: accelerate at accel,
// cruise, decelerate symmetrically, covering unit distance in total
// seconds. Short moves never reach the cruise speed and the profile
// degenerates to a triangle (ramp == total/2).
type trapezoid struct {
	total float64 // move time, seconds
	ramp  float64 // accel phase length, seconds
	accel float64 // normalized acceleration, 1/s^2
}

// newTrapezoid builds the minimum-time profile for distance d under
// velocity cap v and acceleration cap a, normalized to unit distance.
func newTrapezoid(d, v, a float64) trapezoid {
	if d <= v*v/a {
		// Triangular: peak velocity a*ta is reached at the midpoint.
		ta := math.Sqrt(d / a)
		return trapezoid{total: 2 * ta, ramp: ta, accel: a / d}
	}
	return trapezoid{total: d/v + v/a, ramp: v / a, accel: a / d}
}

// progress maps elapsed time to normalized position s in [0,1].
func (tp trapezoid) progress(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= tp.total {
		return 1
	}
	switch {
	case t < tp.ramp:
		return 0.5 * tp.accel * t * t
	case t < tp.total-tp.ramp:
		cruise := tp.accel * tp.ramp
		return 0.5*tp.accel*tp.ramp*tp.ramp + cruise*(t-tp.ramp)
	default:
		tr := tp.total - t
		return 1.0 - 0.5*tp.accel*tr*tr
	}
}
