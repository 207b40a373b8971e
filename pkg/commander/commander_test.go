package commander

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parol-robotics/go-parol6/internal/config"
	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/hardware"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/planner"
	"github.com/parol-robotics/go-parol6/pkg/protocol"
	"github.com/parol-robotics/go-parol6/pkg/safety"
)

// recordingPublisher captures published payloads per topic.
type recordingPublisher struct {
	mu     sync.Mutex
	topics map[string][]interface{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{topics: make(map[string][]interface{})}
}

func (p *recordingPublisher) Publish(topic string, v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics[topic] = append(p.topics[topic], v)
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics[topic])
}

func newTestStack(t *testing.T, pub Publisher) (*Commander, *executor.Executor, *hardware.SimLink, *safety.Supervisor) {
	t.Helper()
	cfg := config.Default()
	cfg.Sim = true
	require.NoError(t, cfg.Validate())

	model := cfg.Model()
	link := hardware.NewSimLink(model.Home)
	sup := safety.NewSupervisor(model, cfg.Safety)
	solver := kinematics.NewSolver(model, cfg.Solver)
	plan := planner.New(model, solver)
	exec := executor.New(model, link, sup, cfg.TickInterval)

	cmdr, err := New(&cfg, model, plan, sup, exec, pub, AckOnCompleted)
	require.NoError(t, err)
	return cmdr, exec, link, sup
}

func TestMultiPublisherFansOut(t *testing.T) {
	a := newRecordingPublisher()
	b := newRecordingPublisher()
	m := MultiPublisher{a, b}

	m.Publish("status", protocol.StatusData{LoopHz: 100})

	assert.Equal(t, 1, a.count("status"))
	assert.Equal(t, 1, b.count("status"))
}

func TestTerminalAckClearsPendingExactlyOnce(t *testing.T) {
	cmdr, _, _, _ := newTestStack(t, nil)

	cmdr.mu.Lock()
	cmdr.pending["req-1"] = pendingReq{waitForAck: true}
	cmdr.mu.Unlock()

	cmdr.onFinished("req-1", executor.OutcomeCompleted, nil)
	cmdr.mu.Lock()
	_, stillPending := cmdr.pending["req-1"]
	cmdr.mu.Unlock()
	assert.False(t, stillPending, "terminal ack must forget the request")

	// A second terminal event for the same id is a no-op.
	cmdr.onFinished("req-1", executor.OutcomeAborted, nil)
}

func TestExecutorHooksDriveAckLifecycle(t *testing.T) {
	cmdr, exec, _, _ := newTestStack(t, nil)

	traj := &planner.Trajectory{
		RequestID: "req-2",
		Kind:      planner.MoveJoint,
		Setpoints: []kinematics.JointAngles{{1, -90, 90, 0, 0, 0}},
	}
	cmdr.mu.Lock()
	cmdr.pending["req-2"] = pendingReq{waitForAck: true}
	cmdr.mu.Unlock()

	require.NoError(t, exec.Install(traj))
	exec.Tick()

	cmdr.mu.Lock()
	_, stillPending := cmdr.pending["req-2"]
	cmdr.mu.Unlock()
	assert.False(t, stillPending, "completion hook must resolve the pending request")
}

func TestStatusPublisherCoversAllTopics(t *testing.T) {
	pub := newRecordingPublisher()
	_, exec, _, _ := newTestStack(t, pub)
	exec.Tick()

	sp := NewStatusPublisher(exec, pub, 20)
	sp.publishOnce()

	for _, topic := range []string{"status", "joints", "pose", "io", "gripper"} {
		assert.Equal(t, 1, pub.count(topic), "topic %s", topic)
	}

	pub.mu.Lock()
	status := pub.topics["status"][0].(protocol.StatusData)
	joints := pub.topics["joints"][0].(protocol.JointsData)
	pub.mu.Unlock()
	assert.True(t, status.Connected)
	assert.Equal(t, "idle", status.Phase)
	assert.InDelta(t, -90.0, joints.Angles[1], 1e-9)
}

func TestStatusPublisherRateCapDefaults(t *testing.T) {
	pub := newRecordingPublisher()
	_, exec, _, _ := newTestStack(t, pub)

	sp := NewStatusPublisher(exec, pub, 0)
	assert.Greater(t, sp.interval.Seconds(), 0.04, "zero rate falls back to 20 Hz")
}
