// Package safety validates commands and per-tick setpoints against joint
// limits and E-stop state, and tracks hardware-link health. The executor
// consults it every tick; the commander consults it before enqueueing.
package safety

import "fmt"

// FaultKind classifies a supervisor fault.
type FaultKind string

const (
	// FaultLimit is a setpoint outside a configured joint range.
	FaultLimit FaultKind = "limit_violation"
	// FaultEStop is an asserted emergency stop.
	FaultEStop FaultKind = "estop"
	// FaultComm is a hardware link that went stale or unreachable.
	FaultComm FaultKind = "communication"
)

// Fault halts motion and requires an explicit clear. It wraps the three
// hard-stop conditions: limit violations, E-stop and escalated
// communication loss.
type Fault struct {
	Kind   FaultKind
	Axis   int    // offending axis for FaultLimit, -1 otherwise
	Detail string // human-readable context
}

func (f *Fault) Error() string {
	if f.Kind == FaultLimit {
		return fmt.Sprintf("safety fault (%s, J%d): %s", f.Kind, f.Axis+1, f.Detail)
	}
	return fmt.Sprintf("safety fault (%s): %s", f.Kind, f.Detail)
}

// CommunicationError is a transient hardware-link problem. It is retried a
// bounded number of times before the supervisor escalates it to a Fault.
type CommunicationError struct {
	Detail string
}

func (e *CommunicationError) Error() string {
	return "communication error: " + e.Detail
}
