package hardware

import (
	"sync"
	"time"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// SimLink is an in-memory arm: written setpoints become the next
// feedback's joint angles. Tests and -sim mode use it in place of the
// serial board. The E-stop pin and I/O lines are settable.
type SimLink struct {
	mu      sync.Mutex
	joints  kinematics.JointAngles
	io      IOBits
	gripper GripperStatus
	closed  bool

	// failReads, when positive, makes that many ReadFeedback calls
	// report a transport error. Used to exercise staleness handling.
	failReads int

	writes int
}

// NewSimLink starts the simulated arm at the given configuration with the
// E-stop released.
func NewSimLink(initial kinematics.JointAngles) *SimLink {
	l := &SimLink{joints: initial}
	for i := range l.io {
		l.io[i] = true // all lines high; E-stop line high = released
	}
	return l
}

func (l *SimLink) WriteSetpoints(j kinematics.JointAngles) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errClosed
	}
	l.joints = j
	l.writes++
	return nil
}

func (l *SimLink) ReadFeedback() (Feedback, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Feedback{}, errClosed
	}
	if l.failReads > 0 {
		l.failReads--
		return Feedback{}, errSimReadFail
	}
	return Feedback{
		Joints:    l.joints,
		IO:        l.io,
		Gripper:   l.gripper,
		Timestamp: time.Now(),
	}, nil
}

func (l *SimLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// SetEStop engages or releases the simulated physical E-stop line.
func (l *SimLink) SetEStop(engaged bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.io[EStopPin] = !engaged
}

// SetIO drives one simulated I/O line.
func (l *SimLink) SetIO(pin int, high bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pin >= 0 && pin < len(l.io) {
		l.io[pin] = high
	}
}

// FailNextReads makes the next n feedback reads fail.
func (l *SimLink) FailNextReads(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failReads = n
}

// WriteCount returns how many setpoint frames have been accepted.
func (l *SimLink) WriteCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Joints returns the last written setpoints.
func (l *SimLink) Joints() kinematics.JointAngles {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.joints
}

type simError string

func (e simError) Error() string { return string(e) }

const (
	errClosed      = simError("sim link closed")
	errSimReadFail = simError("sim link read failure")
)

var _ Link = (*SimLink)(nil)
