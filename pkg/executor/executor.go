// Package executor runs the fixed-rate control loop: one feedback read
// and at most one setpoint write per tick. Trajectory installs are
// atomic and newest-wins; safety checks gate every write.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/hardware"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/planner"
	"github.com/parol-robotics/go-parol6/pkg/safety"
)

// DefaultRate is the control loop period, 100 Hz.
const DefaultRate = 10 * time.Millisecond

// StartedFunc is called when a trajectory's first setpoint is about to
// be written.
type StartedFunc func(requestID string)

// FinishedFunc is called exactly once per installed trajectory with its
// terminal outcome. err is non-nil only for OutcomeAborted.
type FinishedFunc func(requestID string, outcome Outcome, err error)

// Executor owns the 100 Hz loop. All mutable state is guarded by mu;
// Snapshot returns a value copy so readers never hold the lock across
// their own work.
type Executor struct {
	model *kinematics.Model
	link  hardware.Link
	sup   *safety.Supervisor
	rate  time.Duration

	mu        sync.Mutex
	traj      *planner.Trajectory
	tickIndex int
	started   bool // started callback fired for current trajectory
	hold      kinematics.JointAngles
	holdSet   bool
	feedback  hardware.Feedback
	fault     error // latched non-estop fault, cleared by ClearFault
	onStarted StartedFunc
	onDone    FinishedFunc
	sink      func(RobotState)

	// Diagnostics
	tickCount  uint64
	writeErrs  uint64
	hzWindow   time.Time
	hzTicks    int
	measuredHz float64
}

// New builds an executor over the given link and supervisor. rate <= 0
// selects DefaultRate.
func New(model *kinematics.Model, link hardware.Link, sup *safety.Supervisor, rate time.Duration) *Executor {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Executor{model: model, link: link, sup: sup, rate: rate}
}

// SetHooks installs the trajectory lifecycle callbacks. Must be called
// before Run.
func (e *Executor) SetHooks(started StartedFunc, finished FinishedFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStarted = started
	e.onDone = finished
}

// SetStateSink installs a per-tick snapshot callback. The sink runs on
// the control goroutine and must return quickly.
func (e *Executor) SetStateSink(sink func(RobotState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Run drives the control loop until ctx is cancelled. Blocks.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.rate)
	defer ticker.Stop()

	e.mu.Lock()
	e.hzWindow = time.Now()
	e.mu.Unlock()

	log.Info("executor started", "rate_hz", 1.0/e.rate.Seconds())
	for {
		select {
		case <-ctx.Done():
			log.Info("executor stopped", "ticks", e.tickCount)
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Install atomically replaces the active trajectory. If one was already
// executing it is reported as superseded. Returns an error while a fault
// or E-stop is latched.
func (e *Executor) Install(traj *planner.Trajectory) error {
	e.mu.Lock()
	if e.sup.EStopActive() {
		e.mu.Unlock()
		return &safety.Fault{Kind: safety.FaultEStop, Axis: -1, Detail: "estop latched"}
	}
	if e.fault != nil {
		f := e.fault
		e.mu.Unlock()
		return f
	}
	old := e.traj
	oldStarted := e.started
	e.traj = traj
	e.tickIndex = 0
	e.started = false
	done := e.onDone
	e.mu.Unlock()

	if old != nil && oldStarted && done != nil {
		done(old.RequestID, OutcomeSuperseded, nil)
	}
	log.Debug("trajectory installed", "request_id", traj.RequestID, "setpoints", traj.Len())
	return nil
}

// StopMotion drops the active trajectory and holds position. The
// aborted trajectory gets its terminal callback.
func (e *Executor) StopMotion() {
	e.abort(nil, errors.New("motion stopped"))
}

// ClearFault releases a latched non-estop fault. The E-stop latch lives
// in the supervisor and is cleared there.
func (e *Executor) ClearFault() {
	e.mu.Lock()
	e.fault = nil
	e.mu.Unlock()
}

// Snapshot returns the current robot state as an immutable value.
func (e *Executor) Snapshot() RobotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Tick executes one control cycle: read feedback, update safety state,
// then write either the next trajectory setpoint or a position hold.
// Exported so a host can drive the loop from its own clock.
func (e *Executor) Tick() {
	fb, err := e.link.ReadFeedback()
	if err != nil {
		if serr := e.sup.ObserveStaleTick(); serr != nil {
			if f, ok := serr.(*safety.Fault); ok {
				log.Error("feedback lost", "detail", f.Detail)
			} else {
				log.Warn("feedback stale", "err", serr)
			}
		}
	} else {
		e.sup.ObserveFeedback(fb.EStopAsserted())
		e.mu.Lock()
		e.feedback = fb
		if !e.holdSet {
			e.hold = fb.Joints
			e.holdSet = true
		}
		e.mu.Unlock()
	}

	if e.sup.EStopActive() {
		// No new setpoints while stopped; the active trajectory is
		// torn down on the same tick the stop is observed.
		e.abort(nil, &safety.Fault{Kind: safety.FaultEStop, Axis: -1, Detail: "estop asserted"})
		e.finishTick()
		return
	}

	e.mu.Lock()
	faulted := e.fault != nil
	traj := e.traj
	idx := e.tickIndex
	startPending := traj != nil && !e.started
	e.mu.Unlock()

	if faulted {
		// A latched fault halts all writes, hold included, until an
		// explicit clear.
		e.finishTick()
		return
	}

	if traj == nil {
		e.writeHold()
		e.finishTick()
		return
	}

	sp := traj.Setpoints[idx]
	if verr := e.sup.ValidateSetpoint(sp); verr != nil {
		log.Error("setpoint rejected", "request_id", traj.RequestID, "err", verr)
		e.abort(verr, verr)
		e.finishTick()
		return
	}

	if startPending {
		e.mu.Lock()
		e.started = true
		started := e.onStarted
		e.mu.Unlock()
		if started != nil {
			started(traj.RequestID)
		}
	}

	if werr := e.link.WriteSetpoints(sp); werr != nil {
		e.mu.Lock()
		e.writeErrs++
		n := e.writeErrs
		e.mu.Unlock()
		if n%100 == 1 {
			log.Warn("setpoint write failed", "err", werr, "count", n)
		}
		// The setpoint stands; the staleness counters catch a dead link.
	}

	e.mu.Lock()
	e.hold = sp
	e.holdSet = true
	var doneID string
	if e.traj == traj { // a concurrent Install wins
		e.tickIndex++
		if e.tickIndex >= traj.Len() {
			doneID = traj.RequestID
			e.traj = nil
			e.tickIndex = 0
			e.started = false
		}
	}
	done := e.onDone
	e.mu.Unlock()

	if doneID != "" {
		if done != nil {
			done(doneID, OutcomeCompleted, nil)
		}
		log.Debug("trajectory completed", "request_id", doneID)
	}
	e.finishTick()
}

// abort tears down the active trajectory. latch, when non-nil, is
// retained as the executor fault; reason goes to the terminal callback.
func (e *Executor) abort(latch error, reason error) {
	e.mu.Lock()
	traj := e.traj
	e.traj = nil
	e.tickIndex = 0
	e.started = false
	if latch != nil {
		e.fault = latch
	}
	done := e.onDone
	e.mu.Unlock()

	if traj != nil && done != nil {
		done(traj.RequestID, OutcomeAborted, reason)
	}
}

// writeHold streams the last commanded position so the arm firmware
// keeps seeing traffic while idle.
func (e *Executor) writeHold() {
	e.mu.Lock()
	hold := e.hold
	ok := e.holdSet
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := e.link.WriteSetpoints(hold); err != nil {
		e.mu.Lock()
		e.writeErrs++
		e.mu.Unlock()
	}
}

// finishTick updates diagnostics and publishes a snapshot.
func (e *Executor) finishTick() {
	e.mu.Lock()
	e.tickCount++
	e.hzTicks++
	now := time.Now()
	if d := now.Sub(e.hzWindow); d >= time.Second {
		e.measuredHz = float64(e.hzTicks) / d.Seconds()
		e.hzTicks = 0
		e.hzWindow = now
	}
	snap := e.snapshotLocked()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink(snap)
	}
}

func (e *Executor) snapshotLocked() RobotState {
	st := RobotState{
		Joints:      e.feedback.Joints,
		IO:          e.feedback.IO,
		Gripper:     e.feedback.Gripper,
		Phase:       PhaseIdle,
		EStopActive: e.sup.EStopActive(),
		LoopHz:      e.measuredHz,
		Timestamp:   time.Now(),
	}
	st.Pose = e.model.ForwardKinematics(st.Joints)
	switch {
	case st.EStopActive || e.fault != nil:
		st.Phase = PhaseFaulted
		if e.fault != nil {
			st.FaultDetail = e.fault.Error()
		}
	case e.traj != nil:
		st.Phase = PhaseExecuting
		st.RequestID = e.traj.RequestID
		st.TickIndex = e.tickIndex
		st.TrajectoryLen = e.traj.Len()
	}
	return st
}
