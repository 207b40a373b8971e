package executor

import (
	"time"

	"github.com/parol-robotics/go-parol6/pkg/hardware"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// Phase is the executor's top-level state.
type Phase string

const (
	// PhaseIdle means no trajectory is installed; the executor streams a
	// position hold.
	PhaseIdle Phase = "idle"
	// PhaseExecuting means a trajectory is being played out tick by tick.
	PhaseExecuting Phase = "executing"
	// PhaseFaulted means a fault or E-stop is latched and no new
	// setpoints are written until it is cleared.
	PhaseFaulted Phase = "faulted"
)

// Outcome is the terminal disposition of an installed trajectory.
type Outcome string

const (
	// OutcomeCompleted means every setpoint was written.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSuperseded means a newer trajectory replaced this one.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeAborted means a stop, fault, or E-stop cut the motion short.
	OutcomeAborted Outcome = "aborted"
)

// RobotState is an immutable snapshot of the arm as of one control tick.
// Callers receive it by value and may hold it indefinitely.
type RobotState struct {
	Joints        kinematics.JointAngles `json:"joints"`
	Pose          kinematics.Pose        `json:"pose"`
	IO            hardware.IOBits        `json:"io"`
	Gripper       hardware.GripperStatus `json:"gripper"`
	Phase         Phase                  `json:"phase"`
	RequestID     string                 `json:"request_id,omitempty"`
	TickIndex     int                    `json:"tick_index"`
	TrajectoryLen int                    `json:"trajectory_len"`
	EStopActive   bool                   `json:"estop_active"`
	FaultDetail   string                 `json:"fault_detail,omitempty"`
	LoopHz        float64                `json:"loop_hz"`
	Timestamp     time.Time              `json:"timestamp"`
}

// IsStopped reports whether no motion is in progress.
func (s RobotState) IsStopped() bool {
	return s.Phase != PhaseExecuting
}
