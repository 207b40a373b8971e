package commander

import (
	"context"
	"time"

	"github.com/parol-robotics/go-parol6/pkg/executor"
	"github.com/parol-robotics/go-parol6/pkg/protocol"
)

// MultiPublisher fans one payload out to several publishers.
type MultiPublisher []Publisher

// Publish sends v to every publisher in order.
func (m MultiPublisher) Publish(topic string, v interface{}) {
	for _, p := range m {
		p.Publish(topic, v)
	}
}

// StatusPublisher samples the executor's state at the configured rate
// and fans each field out on its topic. It reads snapshots only, so it
// can never disturb the control loop.
type StatusPublisher struct {
	exec     *executor.Executor
	pub      Publisher
	interval time.Duration
}

// NewStatusPublisher builds a publisher ticking at rateHz.
func NewStatusPublisher(exec *executor.Executor, pub Publisher, rateHz float64) *StatusPublisher {
	if rateHz <= 0 {
		rateHz = 20
	}
	return &StatusPublisher{
		exec:     exec,
		pub:      pub,
		interval: time.Duration(float64(time.Second) / rateHz),
	}
}

// Run publishes until ctx is cancelled. Blocks.
func (s *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishOnce()
		}
	}
}

func (s *StatusPublisher) publishOnce() {
	st := s.exec.Snapshot()

	s.pub.Publish(string(protocol.TypeStatus), protocol.StatusData{
		Connected:   true,
		EStopActive: st.EStopActive,
		Phase:       string(st.Phase),
		RequestID:   st.RequestID,
		LoopHz:      st.LoopHz,
	})
	var pose [6]float64
	copy(pose[:], st.Pose.Vector())
	s.pub.Publish(string(protocol.TypeJoints), protocol.JointsData{Angles: [6]float64(st.Joints)})
	s.pub.Publish(string(protocol.TypePose), protocol.PoseData{Pose: pose})
	s.pub.Publish(string(protocol.TypeIO), protocol.IOData{Pins: st.IO})
	s.pub.Publish(string(protocol.TypeGripper), protocol.GripperData{
		ID:             st.Gripper.ID,
		Position:       st.Gripper.Position,
		Speed:          st.Gripper.Speed,
		Current:        st.Gripper.Current,
		ObjectDetected: st.Gripper.ObjectDetected,
	})
}
