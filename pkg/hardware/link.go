// Package hardware is the boundary to the arm electronics. It exposes a
// narrow Link interface (write setpoints, read feedback) with a serial
// implementation speaking the PAROL6 frame format and an in-memory
// simulator for development and tests.
package hardware

import (
	"time"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// IOBits is the state of the eight digital I/O lines.
type IOBits [8]bool

// EStopPin is the input line wired to the physical emergency stop.
// The line is active-low: false means the stop is engaged.
const EStopPin = 4

// Gripper is the parsed gripper status block from feedback.
type GripperStatus struct {
	ID             int  `json:"id"`
	Position       int  `json:"position"`
	Speed          int  `json:"speed"`
	Current        int  `json:"current"`
	ObjectDetected bool `json:"object_detected"`
}

// Feedback is one decoded state report from the arm.
type Feedback struct {
	Joints    kinematics.JointAngles
	IO        IOBits
	Gripper   GripperStatus
	Timestamp time.Time
}

// EStopAsserted reports whether the physical E-stop line reads engaged.
func (f Feedback) EStopAsserted() bool {
	return !f.IO[EStopPin]
}

// Link is the channel to the arm. WriteSetpoints and ReadFeedback are
// called from the 100 Hz loop and must not block beyond the transport's
// own timeout; implementations return errors rather than retrying.
type Link interface {
	WriteSetpoints(kinematics.JointAngles) error
	ReadFeedback() (Feedback, error)
	Close() error
}
