package executor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parol-robotics/go-parol6/pkg/hardware"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/planner"
	"github.com/parol-robotics/go-parol6/pkg/safety"
)

// outcomeRecorder captures trajectory lifecycle callbacks.
type outcomeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string][]Outcome
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{finished: make(map[string][]Outcome)}
}

func (r *outcomeRecorder) onStarted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *outcomeRecorder) onFinished(id string, oc Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = append(r.finished[id], oc)
}

func (r *outcomeRecorder) outcomes(id string) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.finished[id]...)
}

func newTestExecutor(t *testing.T) (*Executor, *hardware.SimLink, *safety.Supervisor, *outcomeRecorder) {
	t.Helper()
	model := kinematics.DefaultModel()
	link := hardware.NewSimLink(model.Home)
	sup := safety.NewSupervisor(model, safety.DefaultConfig())
	exec := New(model, link, sup, DefaultRate)
	rec := newOutcomeRecorder()
	exec.SetHooks(rec.onStarted, rec.onFinished)
	return exec, link, sup, rec
}

// rampTrajectory builds n setpoints stepping J1 from 0 toward n*0.1 deg.
func rampTrajectory(id string, n int) *planner.Trajectory {
	setpoints := make([]kinematics.JointAngles, n)
	for i := range setpoints {
		setpoints[i] = kinematics.JointAngles{float64(i+1) * 0.1, -90, 90, 0, 0, 0}
	}
	return &planner.Trajectory{RequestID: id, Kind: planner.MoveJoint, Setpoints: setpoints}
}

func TestExecutorCompletesTrajectory(t *testing.T) {
	exec, link, _, rec := newTestExecutor(t)

	traj := rampTrajectory("req-1", 5)
	require.NoError(t, exec.Install(traj))

	for i := 0; i < 5; i++ {
		exec.Tick()
	}

	assert.Equal(t, []string{"req-1"}, rec.started)
	assert.Equal(t, []Outcome{OutcomeCompleted}, rec.outcomes("req-1"))
	assert.Equal(t, traj.Setpoints[4], link.Joints(), "last setpoint written")
	assert.Equal(t, PhaseIdle, exec.Snapshot().Phase)
}

func TestExecutorIdleHoldsPosition(t *testing.T) {
	exec, link, _, _ := newTestExecutor(t)

	traj := rampTrajectory("req-2", 3)
	require.NoError(t, exec.Install(traj))
	for i := 0; i < 3; i++ {
		exec.Tick()
	}
	end := link.Joints()
	writes := link.WriteCount()

	// Idle ticks keep streaming the held position.
	exec.Tick()
	exec.Tick()
	assert.Equal(t, end, link.Joints())
	assert.Equal(t, writes+2, link.WriteCount())
}

func TestExecutorNewTrajectorySupersedes(t *testing.T) {
	exec, link, _, rec := newTestExecutor(t)

	old := rampTrajectory("req-old", 100)
	require.NoError(t, exec.Install(old))
	exec.Tick()
	exec.Tick()

	replacement := &planner.Trajectory{
		RequestID: "req-new",
		Kind:      planner.MoveJoint,
		Setpoints: []kinematics.JointAngles{{-5, -90, 90, 0, 0, 0}},
	}
	require.NoError(t, exec.Install(replacement))
	exec.Tick()

	assert.Equal(t, []Outcome{OutcomeSuperseded}, rec.outcomes("req-old"))
	assert.Equal(t, []Outcome{OutcomeCompleted}, rec.outcomes("req-new"))
	assert.Equal(t, replacement.Setpoints[0], link.Joints(),
		"after the swap only new setpoints reach the link")
}

func TestExecutorEStopStopsWithinOneTick(t *testing.T) {
	exec, link, sup, rec := newTestExecutor(t)

	traj := rampTrajectory("req-3", 100)
	require.NoError(t, exec.Install(traj))
	exec.Tick()
	writesBefore := link.WriteCount()

	link.SetEStop(true)
	exec.Tick() // observes the pin; must not write a setpoint

	assert.Equal(t, writesBefore, link.WriteCount(), "no setpoint after estop on the same tick")
	assert.Equal(t, []Outcome{OutcomeAborted}, rec.outcomes("req-3"))
	assert.True(t, sup.EStopActive())
	assert.Equal(t, PhaseFaulted, exec.Snapshot().Phase)

	// Further ticks stay silent.
	exec.Tick()
	exec.Tick()
	assert.Equal(t, writesBefore, link.WriteCount())
}

func TestExecutorInstallRejectedWhileEStopped(t *testing.T) {
	exec, link, sup, _ := newTestExecutor(t)

	link.SetEStop(true)
	exec.Tick()
	require.True(t, sup.EStopActive())

	err := exec.Install(rampTrajectory("req-4", 3))
	require.Error(t, err)

	// Released pin plus explicit clear restores operation.
	link.SetEStop(false)
	exec.Tick()
	require.NoError(t, sup.Clear())
	require.NoError(t, exec.Install(rampTrajectory("req-5", 3)))
	exec.Tick()
	assert.Equal(t, PhaseExecuting, exec.Snapshot().Phase)
}

func TestExecutorRejectsLimitViolatingSetpoint(t *testing.T) {
	exec, link, _, rec := newTestExecutor(t)

	bad := &planner.Trajectory{
		RequestID: "req-6",
		Kind:      planner.MoveJoint,
		Setpoints: []kinematics.JointAngles{{500, -90, 90, 0, 0, 0}},
	}
	require.NoError(t, exec.Install(bad))
	writesBefore := link.WriteCount()
	exec.Tick()

	assert.Equal(t, writesBefore, link.WriteCount(), "violating setpoint never reaches the link")
	assert.Equal(t, []Outcome{OutcomeAborted}, rec.outcomes("req-6"))
	assert.Equal(t, PhaseFaulted, exec.Snapshot().Phase)

	// While the fault is latched the link sees no traffic at all, not
	// even position holds.
	exec.Tick()
	exec.Tick()
	assert.Equal(t, writesBefore, link.WriteCount(), "faulted executor must not write")

	// The fault latches until cleared.
	require.Error(t, exec.Install(rampTrajectory("req-7", 1)))
	exec.ClearFault()
	require.NoError(t, exec.Install(rampTrajectory("req-8", 1)))
}

func TestExecutorStaleFeedbackEscalatesToFault(t *testing.T) {
	model := kinematics.DefaultModel()
	link := hardware.NewSimLink(model.Home)
	sup := safety.NewSupervisor(model, safety.Config{StaleTicks: 2, CommRetryLimit: 1})
	exec := New(model, link, sup, DefaultRate)
	rec := newOutcomeRecorder()
	exec.SetHooks(rec.onStarted, rec.onFinished)

	require.NoError(t, exec.Install(rampTrajectory("req-9", 100)))
	exec.Tick()

	// 2 ticks per communication error, 1 tolerated, then escalation.
	link.FailNextReads(6)
	for i := 0; i < 6; i++ {
		exec.Tick()
	}

	assert.True(t, sup.EStopActive(), "stale feedback beyond the retry budget latches the stop")
	assert.Equal(t, []Outcome{OutcomeAborted}, rec.outcomes("req-9"))
}

func TestExecutorSnapshotIsConsistent(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)

	require.NoError(t, exec.Install(rampTrajectory("req-10", 10)))
	exec.Tick()

	st := exec.Snapshot()
	assert.Equal(t, PhaseExecuting, st.Phase)
	assert.Equal(t, "req-10", st.RequestID)
	assert.Equal(t, 10, st.TrajectoryLen)
	assert.False(t, st.IsStopped())
	assert.False(t, st.Timestamp.IsZero())

	// Mutating the copy cannot affect the executor.
	st.Joints[0] = 999
	assert.NotEqual(t, 999.0, exec.Snapshot().Joints[0])
}

func TestExecutorStateSinkSeesEveryTick(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)

	var mu sync.Mutex
	var phases []Phase
	exec.SetStateSink(func(st RobotState) {
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
	})

	require.NoError(t, exec.Install(rampTrajectory("req-11", 2)))
	exec.Tick()
	exec.Tick()
	exec.Tick()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, phases, 3)
	assert.Equal(t, PhaseExecuting, phases[0])
	assert.Equal(t, PhaseIdle, phases[2])
}
