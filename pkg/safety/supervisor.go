package safety

import (
	"fmt"
	"sync"

	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// EStopSource identifies what asserted the emergency stop.
type EStopSource string

const (
	// EStopManual is the ESTOP command from a caller.
	EStopManual EStopSource = "manual"
	// EStopHardware is the physical E-stop pin read from feedback.
	EStopHardware EStopSource = "hardware"
	// EStopComm is an escalated communication loss.
	EStopComm EStopSource = "communication"
)

// Config tunes the supervisor's feedback-health thresholds.
type Config struct {
	// StaleTicks is how many consecutive ticks without fresh feedback
	// count as one communication error.
	StaleTicks int `json:"stale_ticks"`
	// CommRetryLimit is how many communication errors are tolerated
	// before escalating to a latched fault.
	CommRetryLimit int `json:"comm_retry_limit"`
}

// DefaultConfig returns the supervisor thresholds used on the real arm.
func DefaultConfig() Config {
	return Config{StaleTicks: 10, CommRetryLimit: 5}
}

// Supervisor enforces joint limits and E-stop state. It is consulted on
// every executor tick and must therefore stay cheap: no allocation on the
// validate path, a single mutex for latch state.
type Supervisor struct {
	model *kinematics.Model
	cfg   Config

	mu          sync.Mutex
	estopActive bool
	estopSource EStopSource
	pinAsserted bool // last observed hardware pin state
	staleCount  int
	commErrors  int
}

// NewSupervisor builds a supervisor over the given model's limits.
func NewSupervisor(model *kinematics.Model, cfg Config) *Supervisor {
	if cfg.StaleTicks <= 0 {
		cfg = DefaultConfig()
	}
	return &Supervisor{model: model, cfg: cfg}
}

// ValidateSetpoint checks one per-tick setpoint. A step beyond a joint
// limit is rejected outright rather than clamped, so planner bugs surface
// instead of being masked. An asserted E-stop rejects everything.
func (s *Supervisor) ValidateSetpoint(sp kinematics.JointAngles) error {
	s.mu.Lock()
	estop := s.estopActive
	src := s.estopSource
	s.mu.Unlock()

	if estop {
		return &Fault{Kind: FaultEStop, Axis: -1, Detail: fmt.Sprintf("asserted by %s", src)}
	}
	for i, angle := range sp {
		lim := s.model.Limits[i]
		if !lim.Contains(angle) {
			return &Fault{
				Kind:   FaultLimit,
				Axis:   i,
				Detail: fmt.Sprintf("setpoint %.3f outside [%.3f, %.3f]", angle, lim.Min, lim.Max),
			}
		}
	}
	return nil
}

// ValidateTarget checks a commanded move target before it is enqueued.
// Same rules as ValidateSetpoint; kept separate so callers read as intent.
func (s *Supervisor) ValidateTarget(target kinematics.JointAngles) error {
	return s.ValidateSetpoint(target)
}

// TriggerEStop latches the emergency stop. Idempotent.
func (s *Supervisor) TriggerEStop(source EStopSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.estopActive {
		s.estopActive = true
		s.estopSource = source
		log.Warn("estop asserted", "source", string(source))
	}
}

// ObserveFeedback records fresh hardware feedback. An asserted E-stop pin
// latches the stop; fresh data resets the staleness counters.
func (s *Supervisor) ObserveFeedback(estopPin bool) {
	s.mu.Lock()
	s.pinAsserted = estopPin
	s.staleCount = 0
	s.commErrors = 0
	latch := estopPin && !s.estopActive
	if latch {
		s.estopActive = true
		s.estopSource = EStopHardware
	}
	s.mu.Unlock()
	if latch {
		log.Warn("estop asserted", "source", string(EStopHardware))
	}
}

// ObserveStaleTick records one tick without fresh feedback. After
// StaleTicks consecutive misses it returns a CommunicationError; after
// CommRetryLimit such errors it latches an E-stop and returns the Fault.
func (s *Supervisor) ObserveStaleTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staleCount++
	if s.staleCount < s.cfg.StaleTicks {
		return nil
	}
	s.staleCount = 0
	s.commErrors++
	if s.commErrors <= s.cfg.CommRetryLimit {
		return &CommunicationError{
			Detail: fmt.Sprintf("no feedback for %d ticks (retry %d/%d)",
				s.cfg.StaleTicks, s.commErrors, s.cfg.CommRetryLimit),
		}
	}
	if !s.estopActive {
		s.estopActive = true
		s.estopSource = EStopComm
	}
	return &Fault{Kind: FaultComm, Axis: -1, Detail: "feedback lost beyond retry budget"}
}

// EStopActive reports whether the stop is currently latched.
func (s *Supervisor) EStopActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estopActive
}

// Clear releases the latch. It refuses while the physical pin still reads
// asserted, so a wedged button cannot be cleared from software.
func (s *Supervisor) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.estopActive {
		return nil
	}
	if s.pinAsserted {
		return &Fault{Kind: FaultEStop, Axis: -1, Detail: "physical estop still engaged"}
	}
	s.estopActive = false
	s.estopSource = ""
	s.commErrors = 0
	s.staleCount = 0
	log.Info("estop cleared")
	return nil
}
