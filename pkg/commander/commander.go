// Package commander is the command ingress: it receives motion requests
// over UDP, validates them, plans trajectories (batch IK off the control
// loop for cartesian moves), installs them on the executor, and emits
// acknowledgments on a separate channel.
package commander

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/parol-robotics/go-parol6/internal/config"
	"github.com/parol-robotics/go-parol6/internal/log"
	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/kinematics"
	"github.com/parol-robotics/go-parol6/pkg/planner"
	"github.com/parol-robotics/go-parol6/pkg/protocol"
	"github.com/parol-robotics/go-parol6/pkg/safety"
)

// AckOn selects which trajectory event satisfies wait_for_ack.
type AckOn string

const (
	// AckOnStarted acks as soon as the first setpoint is written.
	AckOnStarted AckOn = "started"
	// AckOnCompleted acks when the last setpoint is written.
	AckOnCompleted AckOn = "completed"
)

// Publisher receives feed payloads for a named topic. Implemented by
// the web server's hub set and by the MQTT mirror.
type Publisher interface {
	Publish(topic string, v interface{})
}

// pendingReq tracks an in-flight request's ack obligations.
type pendingReq struct {
	addr       *net.UDPAddr
	waitForAck bool
}

// Commander wires the ingress socket to the planner and executor. One
// goroutine reads command datagrams; cartesian planning runs on its own
// worker per request so the reader never blocks on IK.
type Commander struct {
	cfg   *config.Config
	model *kinematics.Model
	plan  *planner.Planner
	sup   *safety.Supervisor
	exec  *executor.Executor
	acks  *ackSender
	pub   Publisher
	ackOn AckOn

	conn    *net.UDPConn
	ackPort int

	mu      sync.Mutex
	pending map[string]pendingReq

	// generation invalidates superseded in-flight cartesian plans.
	generation atomic.Uint64
}

// New builds a commander. pub may be nil when no status feed is wired.
func New(cfg *config.Config, model *kinematics.Model, plan *planner.Planner,
	sup *safety.Supervisor, exec *executor.Executor, pub Publisher, ackOn AckOn) (*Commander, error) {

	if ackOn == "" {
		ackOn = AckOnCompleted
	}
	_, ackPortStr, err := net.SplitHostPort(cfg.AckAddr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ack addr")
	}
	ackPort, err := strconv.Atoi(ackPortStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid ack port")
	}

	c := &Commander{
		cfg:     cfg,
		model:   model,
		plan:    plan,
		sup:     sup,
		exec:    exec,
		pub:     pub,
		ackOn:   ackOn,
		ackPort: ackPort,
		pending: make(map[string]pendingReq),
	}
	c.exec.SetHooks(c.onStarted, c.onFinished)
	return c, nil
}

// Run binds the command socket and serves datagrams until ctx is
// cancelled. Blocks.
func (c *Commander) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", c.cfg.CommandAddr)
	if err != nil {
		return errors.Wrap(err, "resolve command addr")
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrap(err, "bind command socket")
	}
	c.conn = conn

	c.acks, err = newAckSender()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "bind ack socket")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
		c.acks.Close()
	}()

	log.Info("commander listening", "command_addr", c.cfg.CommandAddr, "ack_port", c.ackPort)

	buf := make([]byte, 64*1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("command read failed", "err", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.handle(data, src)
	}
}

// handle dispatches one command datagram. Runs on the reader goroutine;
// everything slow is pushed to a worker.
func (c *Commander) handle(data []byte, src *net.UDPAddr) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Warn("malformed command", "addr", src.String(), "err", err)
		return
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.New().String()
	}
	log.Debug("command received", "type", string(msg.Type), "request_id", msg.RequestID)

	switch msg.Type {
	case protocol.TypeEStop:
		c.sup.TriggerEStop(safety.EStopManual)
		c.exec.StopMotion()
		c.ackNow(src, msg.RequestID, protocol.AckCompleted, "")

	case protocol.TypeStop:
		c.exec.StopMotion()
		c.ackNow(src, msg.RequestID, protocol.AckCompleted, "")

	case protocol.TypeClearError:
		if err := c.sup.Clear(); err != nil {
			c.ackNow(src, msg.RequestID, protocol.AckRejected, err.Error())
			return
		}
		c.exec.ClearFault()
		c.ackNow(src, msg.RequestID, protocol.AckCompleted, "")

	case protocol.TypeMoveJoints:
		var p protocol.MoveJointsParams
		if err := msg.ParseData(&p); err != nil {
			c.ackNow(src, msg.RequestID, protocol.AckRejected, "malformed params: "+err.Error())
			return
		}
		c.handleJointMove(msg.RequestID, p, src)

	case protocol.TypeHome:
		var p protocol.HomeParams
		if err := msg.ParseData(&p); err != nil {
			c.ackNow(src, msg.RequestID, protocol.AckRejected, "malformed params: "+err.Error())
			return
		}
		c.handleHome(msg.RequestID, p, src)

	case protocol.TypeMoveCartesian:
		var p protocol.MoveCartesianParams
		if err := msg.ParseData(&p); err != nil {
			c.ackNow(src, msg.RequestID, protocol.AckRejected, "malformed params: "+err.Error())
			return
		}
		c.handleCartesianMove(msg.RequestID, p, src)

	default:
		c.ackNow(src, msg.RequestID, protocol.AckRejected, "unknown command type "+string(msg.Type))
	}
}

func (c *Commander) handleJointMove(id string, p protocol.MoveJointsParams, src *net.UDPAddr) {
	target := kinematics.JointAngles(p.Angles)
	if err := c.sup.ValidateTarget(target); err != nil {
		c.reject(src, id, p.WaitForAck, err)
		return
	}
	current := c.exec.Snapshot().Joints
	traj, err := c.plan.PlanJointMove(current, target, p.SpeedPct, p.AccelPct, id)
	if err != nil {
		c.reject(src, id, p.WaitForAck, err)
		return
	}
	c.generation.Add(1)
	c.install(traj, src, id, p.WaitForAck)
}

func (c *Commander) handleHome(id string, p protocol.HomeParams, src *net.UDPAddr) {
	current := c.exec.Snapshot().Joints
	traj, err := c.plan.PlanHomeMove(current, id)
	if err != nil {
		c.reject(src, id, p.WaitForAck, err)
		return
	}
	c.generation.Add(1)
	c.install(traj, src, id, p.WaitForAck)
}

// handleCartesianMove plans on a worker goroutine: batch IK may take far
// longer than a tick and must never delay the reader or the executor.
func (c *Commander) handleCartesianMove(id string, p protocol.MoveCartesianParams, src *net.UDPAddr) {
	if c.sup.EStopActive() {
		c.reject(src, id, p.WaitForAck, errors.New("estop active"))
		return
	}
	target, err := kinematics.PoseFromVector(p.Pose[:])
	if err != nil {
		c.reject(src, id, p.WaitForAck, err)
		return
	}
	current := c.exec.Snapshot().Joints
	gen := c.generation.Add(1)

	go func() {
		onProgress := func(pr planner.Progress) {
			c.publish(string(protocol.TypePlanning), protocol.PlanningProgress{
				RequestID:  id,
				Current:    pr.Current,
				Total:      pr.Total,
				Recoveries: pr.Recoveries,
			})
		}
		traj, report, err := c.plan.PlanCartesianMove(current, target, p.DurationS, id, onProgress)
		if err != nil {
			c.reject(src, id, p.WaitForAck, err)
			return
		}
		if c.generation.Load() != gen {
			// A newer request arrived while we were solving; the plan
			// is stale and its result is discarded.
			log.Debug("cartesian plan superseded", "request_id", id)
			c.reject(src, id, p.WaitForAck, errors.New("superseded by a newer request"))
			return
		}
		log.Info("cartesian plan ready", "request_id", id,
			"waypoints", report.Waypoints, "iterations", report.Iterations, "recoveries", report.Recoveries)
		c.install(traj, src, id, p.WaitForAck)
	}()
}

// install registers the ack obligation, then hands the trajectory to the
// executor. Registration comes first so the started hook finds it.
func (c *Commander) install(traj *planner.Trajectory, src *net.UDPAddr, id string, waitForAck bool) {
	c.mu.Lock()
	c.pending[id] = pendingReq{addr: c.ackAddr(src), waitForAck: waitForAck}
	c.mu.Unlock()

	if err := c.exec.Install(traj); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.reject(src, id, waitForAck, err)
	}
}

// reject logs and, when the caller asked for acks, emits the terminal
// rejection.
func (c *Commander) reject(src *net.UDPAddr, id string, waitForAck bool, err error) {
	log.Warn("request rejected", "request_id", id, "reason", err.Error())
	if waitForAck && c.acks != nil {
		c.acks.Send(c.ackAddr(src), protocol.Ack{RequestID: id, Status: protocol.AckRejected, Reason: err.Error()})
	}
}

// onStarted is the executor's trajectory-start hook.
func (c *Commander) onStarted(id string) {
	if c.ackOn != AckOnStarted {
		return
	}
	c.terminalAck(id, protocol.AckStarted, "")
}

// onFinished is the executor's terminal hook; fires exactly once per
// installed trajectory.
func (c *Commander) onFinished(id string, outcome executor.Outcome, err error) {
	switch outcome {
	case executor.OutcomeCompleted:
		if c.ackOn == AckOnStarted {
			// Ack already sent at start; just clear the entry.
			c.clearPending(id)
			return
		}
		c.terminalAck(id, protocol.AckCompleted, "")
	case executor.OutcomeSuperseded:
		c.terminalAck(id, protocol.AckRejected, "superseded by a newer request")
	case executor.OutcomeAborted:
		reason := "aborted"
		if err != nil {
			reason = err.Error()
		}
		c.terminalAck(id, protocol.AckRejected, reason)
	}
}

// terminalAck emits the single ack for a pending request and forgets it.
func (c *Commander) terminalAck(id string, status protocol.AckStatus, reason string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok || !req.waitForAck {
		return
	}
	if c.acks != nil {
		c.acks.Send(req.addr, protocol.Ack{RequestID: id, Status: status, Reason: reason})
	}
}

func (c *Commander) clearPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// ackNow sends an immediate ack for commands that resolve synchronously
// or are rejected before install.
func (c *Commander) ackNow(src *net.UDPAddr, id string, status protocol.AckStatus, reason string) {
	if status == protocol.AckRejected {
		log.Warn("request rejected", "request_id", id, "reason", reason)
	}
	if c.acks == nil {
		return
	}
	c.acks.Send(c.ackAddr(src), protocol.Ack{RequestID: id, Status: status, Reason: reason})
}

// ackAddr is the caller's IP on the configured ack port.
func (c *Commander) ackAddr(src *net.UDPAddr) *net.UDPAddr {
	return &net.UDPAddr{IP: src.IP, Port: c.ackPort, Zone: src.Zone}
}

func (c *Commander) publish(topic string, v interface{}) {
	if c.pub != nil {
		c.pub.Publish(topic, v)
	}
}
