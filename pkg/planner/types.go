// Package planner turns high-level move requests into time-indexed
// trajectories: direct joint-space interpolation for joint moves, and
// batch-IK waypoint solving for cartesian moves. Cartesian planning is
// potentially slow and always runs off the real-time path; the executor
// only ever consumes finished trajectories.
package planner

import (
	"fmt"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// MoveKind tags the variant of a MoveRequest.
type MoveKind string

const (
	MoveJoint     MoveKind = "joint"
	MoveCartesian MoveKind = "cartesian"
	MoveHome      MoveKind = "home"
)

// MoveRequest is one high-level motion command. Exactly the fields for
// its Kind are meaningful.
type MoveRequest struct {
	Kind      MoveKind
	RequestID string

	// Joint / home moves.
	JointTarget kinematics.JointAngles
	SpeedPct    float64
	AccelPct    float64

	// Cartesian moves.
	PoseTarget kinematics.Pose
	DurationS  float64

	// Ack handling (consumed by the commander, carried for context).
	WaitForAck bool
	TimeoutS   float64
}

// Trajectory is an ordered sequence of joint setpoints, one per control
// tick. It is immutable once built: the planner creates it, the executor
// consumes it tick by tick, and installation replaces it wholesale.
type Trajectory struct {
	RequestID string
	Kind      MoveKind
	Setpoints []kinematics.JointAngles
}

// Len returns the number of ticks in the trajectory.
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Setpoints)
}

// Report summarizes a completed cartesian planning run.
type Report struct {
	Waypoints  int
	Iterations int
	Recoveries int
}

// Progress is a snapshot of an in-flight cartesian planning run,
// published incrementally while the batch IK solve proceeds.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Recoveries int `json:"recoveries"`
}

// ProgressFunc receives planning progress. It is called from the planning
// worker goroutine and must not block.
type ProgressFunc func(Progress)

// ValidationError rejects a malformed or out-of-range request before it
// reaches the executor. No state changes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %q: %s", e.Field, e.Msg)
	}
	return "validation error: " + e.Msg
}

// IKFailure means the batch solve could not converge for some waypoint
// even after subdivision and seed-sweep recovery. The move is not
// installed; any previous trajectory is unaffected.
type IKFailure struct {
	Waypoint int
	Total    int
	Residual float64
}

func (e *IKFailure) Error() string {
	return fmt.Sprintf("ik failed at waypoint %d/%d (residual %.3f)",
		e.Waypoint+1, e.Total, e.Residual)
}
