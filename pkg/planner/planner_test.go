package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

func newTestPlanner() (*Planner, *kinematics.Model) {
	m := kinematics.DefaultModel()
	s := kinematics.NewSolver(m, kinematics.DefaultSolverConfig())
	return New(m, s), m
}

func TestPlanJointMoveRespectsLimits(t *testing.T) {
	p, m := newTestPlanner()
	current := m.Home
	target := kinematics.JointAngles{45, -30, 60, 50, -40, 120}

	traj, err := p.PlanJointMove(current, target, 50, 50, "req-1")
	require.NoError(t, err)
	require.NotEmpty(t, traj.Setpoints)

	for k, sp := range traj.Setpoints {
		for i, angle := range sp {
			lim := m.Limits[i]
			if angle < lim.Min || angle > lim.Max {
				t.Fatalf("setpoint %d axis %d = %v outside [%v, %v]", k, i, angle, lim.Min, lim.Max)
			}
		}
	}
	assert.Equal(t, target, traj.Setpoints[len(traj.Setpoints)-1], "must land exactly on target")
	assert.Equal(t, MoveJoint, traj.Kind)
	assert.Equal(t, "req-1", traj.RequestID)
}

func TestPlanJointMoveMonotonePerAxis(t *testing.T) {
	p, m := newTestPlanner()
	target := kinematics.JointAngles{30, -120, 40, -60, 80, -90}

	traj, err := p.PlanJointMove(m.Home, target, 40, 40, "req-2")
	require.NoError(t, err)

	prev := m.Home
	for k, sp := range traj.Setpoints {
		for i := range sp {
			dir := target[i] - m.Home[i]
			step := sp[i] - prev[i]
			if dir > 0 && step < -1e-9 {
				t.Fatalf("axis %d regressed at setpoint %d", i, k)
			}
			if dir < 0 && step > 1e-9 {
				t.Fatalf("axis %d regressed at setpoint %d", i, k)
			}
		}
		prev = sp
	}
}

func TestPlanJointMoveAxesArriveTogether(t *testing.T) {
	p, m := newTestPlanner()
	// J6 moves far, J1 barely; both must follow one profile and end at
	// the same tick.
	target := m.Home.Add(kinematics.JointAngles{2, 0, 0, 0, 0, 170})

	traj, err := p.PlanJointMove(m.Home, target, 60, 60, "req-3")
	require.NoError(t, err)

	// Normalized progress of each moving axis must match at every tick.
	for k, sp := range traj.Setpoints {
		s1 := (sp[0] - m.Home[0]) / 2.0
		s6 := (sp[5] - m.Home[5]) / 170.0
		if math.Abs(s1-s6) > 1e-6 {
			t.Fatalf("axes diverged at setpoint %d: J1 %.6f vs J6 %.6f", k, s1, s6)
		}
	}
}

func TestPlanJointMoveValidation(t *testing.T) {
	p, m := newTestPlanner()
	valid := kinematics.JointAngles{10, -90, 90, 0, 0, 0}

	cases := []struct {
		name     string
		target   kinematics.JointAngles
		speedPct float64
		accelPct float64
	}{
		{"zero speed", valid, 0, 50},
		{"speed above 100", valid, 120, 50},
		{"zero accel", valid, 50, 0},
		{"negative accel", valid, 50, -5},
		{"target outside limits", kinematics.JointAngles{200, -90, 90, 0, 0, 0}, 50, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.PlanJointMove(m.Home, tc.target, tc.speedPct, tc.accelPct, "req")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestPlanJointMoveZeroDistance(t *testing.T) {
	p, m := newTestPlanner()
	traj, err := p.PlanJointMove(m.Home, m.Home, 50, 50, "req-4")
	require.NoError(t, err)
	require.Len(t, traj.Setpoints, 1)
	assert.Equal(t, m.Home, traj.Setpoints[0])
}

func TestPlanHomeMove(t *testing.T) {
	p, m := newTestPlanner()
	start := kinematics.JointAngles{40, -60, 30, 20, -10, 90}

	traj, err := p.PlanHomeMove(start, "req-5")
	require.NoError(t, err)
	assert.Equal(t, MoveHome, traj.Kind)
	assert.Equal(t, m.Home, traj.Setpoints[len(traj.Setpoints)-1])
}

func TestPlanCartesianWaypointCount(t *testing.T) {
	p, m := newTestPlanner()
	// Target the current pose: every waypoint solve starts converged, so
	// the count logic is exercised without numerical noise.
	target := m.ForwardKinematics(m.Home)

	cases := []struct {
		durationS float64
		want      int
	}{
		{1.0, 100},
		{2.5, 250},
		{0.5, 50},
	}
	for _, tc := range cases {
		traj, report, err := p.PlanCartesianMove(m.Home, target, tc.durationS, "req", nil)
		require.NoError(t, err)
		assert.Len(t, traj.Setpoints, tc.want, "duration %vs", tc.durationS)
		assert.Equal(t, tc.want, report.Waypoints)
	}
}

func TestPlanCartesianRejectsSubTickDuration(t *testing.T) {
	p, m := newTestPlanner()
	target := m.ForwardKinematics(m.Home)

	for _, d := range []float64{0, 0.005, 0.01, -1} {
		_, _, err := p.PlanCartesianMove(m.Home, target, d, "req", nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "duration %v", d)
	}
}

func TestPlanCartesianMoveSolvesPath(t *testing.T) {
	p, m := newTestPlanner()
	truth := m.Home.Add(kinematics.JointAngles{6, 4, -5, 8, -6, 10})
	target := m.ForwardKinematics(truth)

	var progress []Progress
	traj, report, err := p.PlanCartesianMove(m.Home, target, 0.5, "req-6", func(pr Progress) {
		progress = append(progress, pr)
	})
	require.NoError(t, err)
	require.Len(t, traj.Setpoints, 50)
	assert.Equal(t, MoveCartesian, traj.Kind)

	// Progress is reported once per waypoint, monotonically.
	require.Len(t, progress, 50)
	for i, pr := range progress {
		assert.Equal(t, i+1, pr.Current)
		assert.Equal(t, 50, pr.Total)
	}
	assert.True(t, report.Iterations >= 0)

	// The final setpoint's FK lands on the target.
	end := m.ForwardKinematics(traj.Setpoints[len(traj.Setpoints)-1])
	dx, dy, dz := end.X-target.X, end.Y-target.Y, end.Z-target.Z
	assert.Less(t, math.Sqrt(dx*dx+dy*dy+dz*dz), 1.0, "final pose error in mm")

	// Every setpoint respects the joint limits.
	for k, sp := range traj.Setpoints {
		require.Empty(t, m.CheckLimits(sp), "setpoint %d outside limits", k)
	}
}

func TestPlanCartesianFailurePreservesNothing(t *testing.T) {
	m := kinematics.DefaultModel()
	cfg := kinematics.DefaultSolverConfig()
	// Trim the recovery budget so the failure path stays fast.
	cfg.MaxIterations = 25
	cfg.MaxDepth = 1
	cfg.SweepSteps = 2
	p := New(m, kinematics.NewSolver(m, cfg))

	unreachable := kinematics.Pose{X: 5000}
	traj, report, err := p.PlanCartesianMove(m.Home, unreachable, 0.2, "req-7", nil)
	assert.Nil(t, traj)
	assert.Nil(t, report)
	var ikErr *IKFailure
	require.ErrorAs(t, err, &ikErr)
	assert.Equal(t, 20, ikErr.Total)
}
