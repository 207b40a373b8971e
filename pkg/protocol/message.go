// Package protocol defines the JSON message types spoken on the command
// and ack datagram channels and on the status feed. It is shared by the
// commander daemon and external clients (bridge, monitor).
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of a command-channel message.
type MessageType string

const (
	// Caller → commander commands
	TypeMoveJoints    MessageType = "MOVE_JOINTS"
	TypeMoveCartesian MessageType = "MOVE_CARTESIAN"
	TypeHome          MessageType = "HOME"
	TypeStop          MessageType = "STOP"
	TypeEStop         MessageType = "ESTOP"
	TypeClearError    MessageType = "CLEAR_ERROR"

	// Status feed topics
	TypeStatus   MessageType = "status"
	TypeJoints   MessageType = "joints"
	TypePose     MessageType = "pose"
	TypeIO       MessageType = "io"
	TypeGripper  MessageType = "gripper"
	TypePlanning MessageType = "planning"
)

// Message is the envelope for all command and status messages.
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType MessageType, requestID string, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// =============================================================================
// Command payloads
// =============================================================================

// MoveJointsParams is the payload of a MOVE_JOINTS command. Angles are
// degrees; speed and accel are percentages of the per-joint maxima.
type MoveJointsParams struct {
	Angles     [6]float64 `json:"angles"`
	SpeedPct   float64    `json:"speed_pct"`
	AccelPct   float64    `json:"accel_pct"`
	WaitForAck bool       `json:"wait_for_ack,omitempty"`
	TimeoutS   float64    `json:"timeout_s,omitempty"`
}

// MoveCartesianParams is the payload of a MOVE_CARTESIAN command. Pose
// is [X, Y, Z, RX, RY, RZ] in mm and degrees.
type MoveCartesianParams struct {
	Pose       [6]float64 `json:"pose"`
	DurationS  float64    `json:"duration_s"`
	WaitForAck bool       `json:"wait_for_ack,omitempty"`
	TimeoutS   float64    `json:"timeout_s,omitempty"`
}

// HomeParams is the payload of a HOME command.
type HomeParams struct {
	WaitForAck bool    `json:"wait_for_ack,omitempty"`
	TimeoutS   float64 `json:"timeout_s,omitempty"`
}

// =============================================================================
// Ack channel
// =============================================================================

// AckStatus is the disposition reported on the ack channel.
type AckStatus string

const (
	AckStarted   AckStatus = "STARTED"
	AckCompleted AckStatus = "COMPLETED"
	AckRejected  AckStatus = "REJECTED"
)

// Ack is one acknowledgment datagram. Exactly one terminal ack
// (COMPLETED or REJECTED) is sent per request_id.
type Ack struct {
	RequestID string    `json:"request_id"`
	Status    AckStatus `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

// Bytes returns the JSON-encoded ack.
func (a Ack) Bytes() ([]byte, error) {
	return json.Marshal(a)
}

// ParseAck parses an ack datagram.
func ParseAck(data []byte) (Ack, error) {
	var a Ack
	if err := json.Unmarshal(data, &a); err != nil {
		return Ack{}, fmt.Errorf("failed to parse ack: %w", err)
	}
	return a, nil
}

// =============================================================================
// Status feed payloads
// =============================================================================

// StatusData is the periodic health snapshot on the "status" topic.
type StatusData struct {
	Connected   bool    `json:"connected"`
	EStopActive bool    `json:"estop_active"`
	Phase       string  `json:"phase"`
	RequestID   string  `json:"request_id,omitempty"`
	LoopHz      float64 `json:"loop_hz"`
}

// JointsData is the periodic joint snapshot, degrees.
type JointsData struct {
	Angles [6]float64 `json:"angles"`
}

// PoseData is the periodic TCP pose snapshot, [X, Y, Z, RX, RY, RZ] in
// mm and degrees.
type PoseData struct {
	Pose [6]float64 `json:"pose"`
}

// IOData is the periodic digital I/O snapshot.
type IOData struct {
	Pins [8]bool `json:"pins"`
}

// GripperData is the periodic gripper snapshot.
type GripperData struct {
	ID             int  `json:"id"`
	Position       int  `json:"position"`
	Speed          int  `json:"speed"`
	Current        int  `json:"current"`
	ObjectDetected bool `json:"object_detected"`
}

// PlanningProgress reports batch IK progress during cartesian
// pre-computation on the "planning" topic.
type PlanningProgress struct {
	RequestID  string `json:"request_id"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Recoveries int    `json:"recoveries"`
}
