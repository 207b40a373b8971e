package hardware

import (
	"github.com/pkg/errors"

	"github.com/parol-robotics/go-parol6/pkg/kinematics"
)

// Wire framing for the PAROL6 controller board. A frame is
//
//	0xFF 0xFF 0xFF | len | payload | crc | 0x01 0x02
//
// where crc is the XOR of the payload bytes. Joint angles travel as
// 3-byte big-endian signed millidegrees.
var (
	frameStart = []byte{0xFF, 0xFF, 0xFF}
	frameEnd   = []byte{0x01, 0x02}
)

const (
	// Setpoint payload: 6 joints x 3 bytes + io byte + gripper command.
	setpointPayloadLen = 6*3 + 1 + 2
	// Feedback payload: 6 joints x 3 bytes + io byte + gripper block.
	feedbackPayloadLen = 6*3 + 1 + 6
	millidegPerDeg     = 1000.0
)

// packAngle encodes a signed millidegree value into 3 big-endian bytes.
func packAngle(buf []byte, deg float64) {
	v := int32(deg * millidegPerDeg)
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

// unpackAngle decodes 3 big-endian bytes into degrees, sign-extending
// the 24-bit value.
func unpackAngle(buf []byte) float64 {
	v := int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])
	if v >= 1<<23 {
		v -= 1 << 24
	}
	return float64(v) / millidegPerDeg
}

func xorChecksum(payload []byte) byte {
	var c byte
	for _, b := range payload {
		c ^= b
	}
	return c
}

// packIO folds the I/O lines into one byte, bit 0 = line 0.
func packIO(io IOBits) byte {
	var b byte
	for i, set := range io {
		if set {
			b |= 1 << uint(i)
		}
	}
	return b
}

func unpackIO(b byte) IOBits {
	var io IOBits
	for i := range io {
		io[i] = b&(1<<uint(i)) != 0
	}
	return io
}

// encodeSetpointFrame builds the TX frame for one tick's setpoints.
func encodeSetpointFrame(j kinematics.JointAngles) []byte {
	payload := make([]byte, setpointPayloadLen)
	for i := 0; i < kinematics.NumJoints; i++ {
		packAngle(payload[i*3:], j[i])
	}
	// io byte and gripper command are reserved on the TX side for now;
	// the board keeps its previous values when they are zero.

	frame := make([]byte, 0, len(frameStart)+1+len(payload)+1+len(frameEnd))
	frame = append(frame, frameStart...)
	frame = append(frame, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, xorChecksum(payload))
	frame = append(frame, frameEnd...)
	return frame
}

// decodeFeedbackFrame parses one RX frame into a Feedback. The caller is
// responsible for timestamping.
func decodeFeedbackFrame(frame []byte) (Feedback, error) {
	var fb Feedback
	minLen := len(frameStart) + 1 + feedbackPayloadLen + 1 + len(frameEnd)
	if len(frame) < minLen {
		return fb, errors.Errorf("feedback frame too short: %d bytes", len(frame))
	}
	for i, b := range frameStart {
		if frame[i] != b {
			return fb, errors.New("feedback frame missing start bytes")
		}
	}
	n := int(frame[3])
	if n != feedbackPayloadLen {
		return fb, errors.Errorf("unexpected feedback payload length %d", n)
	}
	payload := frame[4 : 4+n]
	crc := frame[4+n]
	if crc != xorChecksum(payload) {
		return fb, errors.New("feedback frame checksum mismatch")
	}
	if frame[5+n] != frameEnd[0] || frame[6+n] != frameEnd[1] {
		return fb, errors.New("feedback frame missing end bytes")
	}

	for i := 0; i < kinematics.NumJoints; i++ {
		fb.Joints[i] = unpackAngle(payload[i*3:])
	}
	fb.IO = unpackIO(payload[18])
	g := payload[19:25]
	fb.Gripper = GripperStatus{
		ID:             int(g[0]),
		Position:       int(g[1])<<8 | int(g[2]),
		Speed:          int(g[3]),
		Current:        int(g[4]),
		ObjectDetected: g[5] != 0,
	}
	return fb, nil
}

// encodeFeedbackFrame is the inverse of decodeFeedbackFrame. The firmware
// side of the protocol; used by the simulator and the codec tests.
func encodeFeedbackFrame(fb Feedback) []byte {
	payload := make([]byte, feedbackPayloadLen)
	for i := 0; i < kinematics.NumJoints; i++ {
		packAngle(payload[i*3:], fb.Joints[i])
	}
	payload[18] = packIO(fb.IO)
	payload[19] = byte(fb.Gripper.ID)
	payload[20] = byte(fb.Gripper.Position >> 8)
	payload[21] = byte(fb.Gripper.Position)
	payload[22] = byte(fb.Gripper.Speed)
	payload[23] = byte(fb.Gripper.Current)
	if fb.Gripper.ObjectDetected {
		payload[24] = 1
	}

	frame := make([]byte, 0, len(frameStart)+1+len(payload)+1+len(frameEnd))
	frame = append(frame, frameStart...)
	frame = append(frame, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, xorChecksum(payload))
	frame = append(frame, frameEnd...)
	return frame
}
